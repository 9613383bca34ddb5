// Package peimage gives typed access to the resource section of a Windows
// PE image.
//
// A Table is loaded from the current bytes of an Image, mutated in memory and
// written back in one Rewrite transaction, so the image on disk always holds
// either its previous or its complete new resource section.
package peimage
