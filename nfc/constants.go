package nfc

import "time"

// Card type constants reported by Tag.Type.
const (
	CardTypeMifareClassic    = "MIFARE Classic"
	CardTypeMifareUltralight = "MIFARE Ultralight"
	CardTypeDesfire          = "DESFire"
	CardTypeType4            = "Type4"
	CardTypeISO14443A        = "ISO14443A"
)

// Radio timing defaults.
const (
	DefaultPollInterval = 100 * time.Millisecond
	DeviceEnumRetries   = 3 // Number of retries for device enumeration
)
