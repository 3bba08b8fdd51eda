package nfc

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/clausecker/freefare"
	"github.com/clausecker/nfc/v2"
	"github.com/sirupsen/logrus"
)

// libnfcDevice implements Device using an actual nfc.Device from libnfc.
type libnfcDevice struct {
	device nfc.Device
	logger *logrus.Entry
}

// NewDevice creates a new Device from an nfc.Device.
func NewDevice(dev nfc.Device) Device {
	return &libnfcDevice{
		device: dev,
		logger: logrus.WithField("component", "nfc.libnfc"),
	}
}

func (d *libnfcDevice) Close() error {
	return d.device.Close()
}

func (d *libnfcDevice) InitiatorInit() error {
	return d.device.InitiatorInit()
}

func (d *libnfcDevice) String() string {
	return d.device.String()
}

func (d *libnfcDevice) Connection() string {
	return d.device.Connection()
}

// GetTags polls the field once.
// Freefare-known tags (MIFARE Classic, DESFire, Ultralight) are typed first,
// then any remaining ISO14443A targets are reported from the passive target list.
func (d *libnfcDevice) GetTags() ([]Tag, error) {
	var found []Tag
	seen := make(map[string]bool)

	ffTags, err := freefare.GetTags(d.device)
	if err != nil {
		d.logger.WithError(err).Debug("freefare.GetTags failed")
	} else {
		for _, ffTag := range ffTags {
			uid := strings.ToUpper(ffTag.UID())
			if seen[uid] {
				continue
			}
			id, decErr := hex.DecodeString(uid)
			if decErr != nil {
				d.logger.WithField("uid", uid).Warn("freefare tag reported a malformed UID")
				continue
			}

			tag := &libnfcTag{id: id, techs: []Technology{TechNfcA}}
			switch ffTag.(type) {
			case freefare.ClassicTag:
				tag.tagType = CardTypeMifareClassic
				tag.techs = append(tag.techs, TechMifareClassic)
			case freefare.DESFireTag:
				tag.tagType = CardTypeDesfire
				tag.techs = append(tag.techs, TechIsoDep)
			case freefare.UltralightTag:
				tag.tagType = CardTypeMifareUltralight
			default:
				tag.tagType = CardTypeISO14443A
			}
			found = append(found, tag)
			seen[uid] = true
		}
	}

	modulation := nfc.Modulation{Type: nfc.ISO14443a, BaudRate: nfc.Nbr106}
	targets, listErr := d.device.InitiatorListPassiveTargets(modulation)
	if listErr != nil {
		if err != nil && len(found) == 0 {
			return nil, fmt.Errorf("error from freefare (%v) AND passive targets (%w)", err, listErr)
		}
		d.logger.WithError(listErr).Debug("listing passive targets failed")
		return found, nil
	}

	for _, target := range targets {
		isoA, ok := target.(*nfc.ISO14443aTarget)
		if !ok {
			continue
		}
		if isoA.UIDLen <= 0 || int(isoA.UIDLen) > len(isoA.UID) {
			continue
		}
		id := make([]byte, isoA.UIDLen)
		copy(id, isoA.UID[:isoA.UIDLen])
		uid := strings.ToUpper(hex.EncodeToString(id))
		if seen[uid] {
			continue
		}

		tag := &libnfcTag{id: id, tagType: CardTypeISO14443A, techs: []Technology{TechNfcA}}
		// SAK bit 5 marks ISO14443-4 compliance.
		if isoA.Sak&0x20 != 0 {
			tag.tagType = CardTypeType4
			tag.techs = append(tag.techs, TechIsoDep)
		}
		found = append(found, tag)
		seen[uid] = true
	}

	return found, nil
}

// libnfcTag is a tag observed during one poll of a libnfc device.
type libnfcTag struct {
	id      []byte
	tagType string
	techs   []Technology
}

func (t *libnfcTag) UID() string                { return strings.ToUpper(hex.EncodeToString(t.id)) }
func (t *libnfcTag) ID() []byte                 { return t.id }
func (t *libnfcTag) Type() string               { return t.tagType }
func (t *libnfcTag) Technologies() []Technology { return t.techs }
