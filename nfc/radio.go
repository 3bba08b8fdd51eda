package nfc

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RadioOptions configures a Radio.
type RadioOptions struct {
	Manager      Manager
	DevicePath   string
	PollInterval time.Duration
	Clock        Clock
	Logger       *logrus.Entry
}

// Radio is the exclusively held handle to the NFC hardware.
//
// A scan session acquires the radio, starts it, issues one technology request
// and releases it when done. Acquire never queues: while the radio is held a
// second Acquire fails fast with ErrCodeRadioBusy.
//
// Example:
//
//	radio := nfc.DefaultRadio(nfc.RadioOptions{Manager: nfc.NewManager()})
//	release, err := radio.Acquire()
//	if err != nil {
//	    return err
//	}
//	defer release()
//	if err := radio.Start(); err != nil {
//	    return err
//	}
//	if err := radio.RequestTechnology(ctx, nfc.TechNfcA); err != nil {
//	    return err
//	}
//	tag, _ := radio.GetTag()
type Radio struct {
	devices      *DeviceManager
	clock        Clock
	pollInterval time.Duration
	cache        *TagCache
	logger       *logrus.Entry

	holdMu sync.Mutex
	held   bool
	hold   uint64 // incremented by every successful Acquire

	reqMu  sync.Mutex
	cancel chan struct{} // non-nil while a technology request is outstanding
}

var (
	defaultRadioOnce sync.Once
	defaultRadio     *Radio
)

// DefaultRadio returns the process-wide Radio. The options of the first call
// win; later calls return the same handle.
func DefaultRadio(opts RadioOptions) *Radio {
	defaultRadioOnce.Do(func() {
		defaultRadio = NewRadio(opts)
	})
	return defaultRadio
}

// NewRadio creates a standalone Radio. Production code should share the
// handle returned by DefaultRadio.
func NewRadio(opts RadioOptions) *Radio {
	if opts.Manager == nil {
		opts.Manager = NewManager()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Clock == nil {
		opts.Clock = NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.WithField("component", "nfc.radio")
	}

	return &Radio{
		devices:      NewDeviceManager(opts.Manager, opts.DevicePath),
		clock:        opts.Clock,
		pollInterval: opts.PollInterval,
		cache:        NewTagCache(opts.Clock),
		logger:       opts.Logger,
	}
}

// ReleaseFunc gives up the hold returned with it by Acquire.
type ReleaseFunc func() error

// Acquire takes exclusive ownership of the radio. Only the returned
// ReleaseFunc can give it up.
func (r *Radio) Acquire() (ReleaseFunc, error) {
	r.holdMu.Lock()
	defer r.holdMu.Unlock()
	if r.held {
		return nil, NewRadioBusyError("Acquire")
	}
	r.held = true
	r.hold++
	hold := r.hold
	return func() error { return r.release(hold) }, nil
}

// release cancels any outstanding request, closes the device and gives up
// ownership. It is a no-op unless hold is the current hold, so a stale
// ReleaseFunc cannot end a later session's hold. Ownership is given up even
// when closing the device fails.
func (r *Radio) release(hold uint64) error {
	r.holdMu.Lock()
	defer r.holdMu.Unlock()
	if !r.held || r.hold != hold {
		return nil
	}
	r.CancelTechnologyRequest()
	err := r.devices.Close()
	r.cache.Clear()
	r.held = false
	r.logger.Debug("radio released")
	return err
}

// Held reports whether the radio is currently acquired.
func (r *Radio) Held() bool {
	r.holdMu.Lock()
	defer r.holdMu.Unlock()
	return r.held
}

// Start connects to and initialises the NFC device.
func (r *Radio) Start() error {
	if err := r.devices.TryConnect(); err != nil {
		return NewNoDeviceError("Start", err)
	}
	return nil
}

// RequestTechnology blocks until a tag answering to tech is in the field, ctx
// is done, or CancelTechnologyRequest is called. Only one request may be
// outstanding at a time.
func (r *Radio) RequestTechnology(ctx context.Context, tech Technology) error {
	r.reqMu.Lock()
	if r.cancel != nil {
		r.reqMu.Unlock()
		return Errorf(ErrCodeRequestPending, "RequestTechnology", "a technology request is already outstanding")
	}
	cancel := make(chan struct{})
	r.cancel = cancel
	r.reqMu.Unlock()

	defer func() {
		r.reqMu.Lock()
		if r.cancel == cancel {
			r.cancel = nil
		}
		r.reqMu.Unlock()
	}()

	r.cache.Clear()
	ticker := r.clock.NewTicker(r.pollInterval)
	defer ticker.Stop()

	log := r.logger.WithField("technology", tech)
	log.Debug("waiting for tag")

	for {
		dev := r.devices.Device()
		if dev == nil {
			return NewNoDeviceError("RequestTechnology", nil)
		}

		tags, err := dev.GetTags()
		if err != nil {
			return NewReadError("RequestTechnology", err)
		}
		for _, tag := range tags {
			if !Supports(tag, tech) {
				log.WithFields(logrus.Fields{"uid": tag.UID(), "type": tag.Type()}).Debug("ignoring tag of other technology")
				continue
			}
			r.cache.Store(newTagInfo(tag))
			log.WithField("uid", tag.UID()).Info("tag detected")
			return nil
		}

		select {
		case <-ctx.Done():
			return NewCancelledError("RequestTechnology", ctx.Err())
		case <-cancel:
			return NewCancelledError("RequestTechnology", nil)
		case <-ticker.C():
		}
	}
}

// GetTag returns the tag found by the last successful RequestTechnology.
func (r *Radio) GetTag() (TagInfo, error) {
	info, _, ok := r.cache.Last()
	if !ok {
		return TagInfo{}, Errorf(ErrCodeNoTag, "GetTag", "no tag detected")
	}
	return info, nil
}

// CancelTechnologyRequest aborts the outstanding technology request, if any.
func (r *Radio) CancelTechnologyRequest() error {
	r.reqMu.Lock()
	defer r.reqMu.Unlock()
	if r.cancel != nil {
		close(r.cancel)
		r.cancel = nil
	}
	return nil
}
