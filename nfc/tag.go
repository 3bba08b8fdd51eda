package nfc

// Technology names a contactless standard a scan can request.
type Technology string

const (
	// TechNfcA matches any ISO14443 Type A tag.
	TechNfcA Technology = "NfcA"
	// TechMifareClassic matches MIFARE Classic tags.
	TechMifareClassic Technology = "MifareClassic"
	// TechIsoDep matches ISO14443-4 (ISO-DEP) tags.
	TechIsoDep Technology = "IsoDep"
)

// Tag represents a tag detected by a Device.
//
// Identifier scanning only needs the raw UID bytes, so Tag exposes the
// identity of the tag rather than its memory.
//
// Example:
//
//	tags, _ := device.GetTags()
//	for _, tag := range tags {
//	    fmt.Printf("%s %X\n", tag.Type(), tag.ID())
//	}
type Tag interface {
	// UID returns the uppercase hex form of ID.
	UID() string
	// ID returns the raw identifier bytes reported during anticollision.
	ID() []byte
	// Type returns a human readable card type (see CardType constants).
	Type() string
	// Technologies lists the standards the tag answers to.
	Technologies() []Technology
}

// Supports reports whether tag answers to tech.
func Supports(tag Tag, tech Technology) bool {
	for _, t := range tag.Technologies() {
		if t == tech {
			return true
		}
	}
	return false
}

// TagInfo is a snapshot of a detected tag, detached from the device.
type TagInfo struct {
	ID   []byte
	Type string
}

func newTagInfo(tag Tag) TagInfo {
	id := tag.ID()
	cp := make([]byte, len(id))
	copy(cp, id)
	return TagInfo{ID: cp, Type: tag.Type()}
}
