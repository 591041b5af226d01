package fat

import "encoding/binary"

// Attribute bits of a directory entry's attr byte.
const (
	AttrReadOnly  = 0x01
	AttrHidden    = 0x02
	AttrSystem    = 0x04
	AttrVolumeID  = 0x08
	AttrDirectory = 0x10
	AttrArchive   = 0x20
	// AttrLongName is attr 0x0F == (READ_ONLY|HIDDEN|SYSTEM|VOLUME_ID),
	// distinguishing a long entry from any short entry.
	AttrLongName = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeID
)

// First-byte sentinels for a directory slot's name field.
const (
	nameSlotFree    = 0x00
	nameSlotDeleted = 0xE5
	nameSlotRealE5  = 0x05
)

// ShortDirEntry is the decoded form of a 32-byte short directory entry,
// field-for-field in on-disk order.
type ShortDirEntry struct {
	Name             [11]byte
	Attr             byte
	NTRes            byte
	CreateTimeTenth  byte
	CreateTime       uint16
	CreateDate       uint16
	LastAccessDate   uint16
	FirstClusterHigh uint16
	WriteTime        uint16
	WriteDate        uint16
	FirstClusterLow  uint16
	FileSize         uint32
}

// DecodeShortDirEntry parses a raw 32-byte slot into a ShortDirEntry. It
// does not interpret the name[0] sentinel; callers check that separately
// since a 0xE5/0x00/0x05 slot's remaining bytes are not meaningful short
// entry data in the free/deleted case.
func DecodeShortDirEntry(raw [32]byte) ShortDirEntry {
	var e ShortDirEntry
	copy(e.Name[:], raw[0:11])
	e.Attr = raw[11]
	e.NTRes = raw[12]
	e.CreateTimeTenth = raw[13]
	e.CreateTime = binary.LittleEndian.Uint16(raw[14:16])
	e.CreateDate = binary.LittleEndian.Uint16(raw[16:18])
	e.LastAccessDate = binary.LittleEndian.Uint16(raw[18:20])
	e.FirstClusterHigh = binary.LittleEndian.Uint16(raw[20:22])
	e.WriteTime = binary.LittleEndian.Uint16(raw[22:24])
	e.WriteDate = binary.LittleEndian.Uint16(raw[24:26])
	e.FirstClusterLow = binary.LittleEndian.Uint16(raw[26:28])
	e.FileSize = binary.LittleEndian.Uint32(raw[28:32])
	return e
}

// Encode packs the entry back into its 32-byte on-disk form.
func (e ShortDirEntry) Encode() [32]byte {
	var raw [32]byte
	copy(raw[0:11], e.Name[:])
	raw[11] = e.Attr
	raw[12] = e.NTRes
	raw[13] = e.CreateTimeTenth
	binary.LittleEndian.PutUint16(raw[14:16], e.CreateTime)
	binary.LittleEndian.PutUint16(raw[16:18], e.CreateDate)
	binary.LittleEndian.PutUint16(raw[18:20], e.LastAccessDate)
	binary.LittleEndian.PutUint16(raw[20:22], e.FirstClusterHigh)
	binary.LittleEndian.PutUint16(raw[22:24], e.WriteTime)
	binary.LittleEndian.PutUint16(raw[24:26], e.WriteDate)
	binary.LittleEndian.PutUint16(raw[26:28], e.FirstClusterLow)
	binary.LittleEndian.PutUint32(raw[28:32], e.FileSize)
	return raw
}

// FirstCluster reassembles the entry's starting cluster from its high/low
// halves.
func (e ShortDirEntry) FirstCluster() uint32 {
	return (uint32(e.FirstClusterHigh) << 16) | uint32(e.FirstClusterLow)
}

// SetFirstCluster splits a cluster number into the entry's high/low
// fields.
func (e *ShortDirEntry) SetFirstCluster(cluster uint32) {
	e.FirstClusterHigh = uint16(cluster >> 16)
	e.FirstClusterLow = uint16(cluster & 0xFFFF)
}

// slotIsFree reports whether a raw slot's name[0] is the 0x00 "this slot and
// all after are free" sentinel.
func slotIsFree(raw [32]byte) bool {
	return raw[0] == nameSlotFree
}

// slotIsDeleted reports whether a raw slot's name[0] is the 0xE5 "deleted"
// sentinel.
func slotIsDeleted(raw [32]byte) bool {
	return raw[0] == nameSlotDeleted
}

// IsLongEntry reports whether a raw slot's attribute byte marks it as a
// VFAT long-name entry.
func slotIsLongEntry(raw [32]byte) bool {
	return raw[11] == AttrLongName
}

// realNameFirstByte undoes the 0x05 "real character 0xE5" substitution,
// returning the actual first byte of the short name.
func realNameFirstByte(raw [32]byte) byte {
	if raw[0] == nameSlotRealE5 {
		return 0xE5
	}
	return raw[0]
}
