// Package icon decodes .ico files and installs them as the icon group of an
// executable: one RT_GROUP_ICON directory plus one RT_ICON per image.
package icon
