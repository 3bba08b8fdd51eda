// Package scan implements the scan session that reads a card identifier from a
// physical tag through the exclusively held NFC radio.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/nedpals/davi-nfc-cards/cardid"
	"github.com/nedpals/davi-nfc-cards/nfc"
)

var (
	// ErrAcquisition wraps failures to acquire or start the radio.
	ErrAcquisition = errors.New("scan acquisition failed")
	// ErrDecode wraps failures to read or encode the detected tag.
	ErrDecode = errors.New("tag decode failed")
)

// Radio is the part of nfc.Radio a session drives.
type Radio interface {
	Acquire() (nfc.ReleaseFunc, error)
	Start() error
	RequestTechnology(ctx context.Context, tech nfc.Technology) error
	GetTag() (nfc.TagInfo, error)
	CancelTechnologyRequest() error
}

// Options configures a Session.
type Options struct {
	Radio Radio
	// Codec encodes the tag id into a raw identifier. Defaults to cardid.HexCodec.
	Codec cardid.Codec
	// Technology requested from the radio. Defaults to nfc.TechNfcA.
	Technology nfc.Technology
	// Timeout bounds the wait for a tag. Zero waits until closed.
	Timeout time.Duration
	Logger  *logrus.Entry

	// OnComplete receives the decoded identifier once the session is Idle again.
	OnComplete func(identifier string)
	// OnFailure receives acquisition and decode failures once the session is Idle again.
	OnFailure func(err error)
	// OnPhase observes every phase change, in order.
	OnPhase func(Phase)
}

// Session is a single-use-at-a-time scan lifecycle. Open starts a run; a run
// always ends by releasing the radio and returning to Idle, after which the
// session can be opened again.
//
// Example:
//
//	s := scan.NewSession(scan.Options{
//	    Radio: nfc.DefaultRadio(nfc.RadioOptions{}),
//	    OnComplete: func(id string) { ctrl.SetIdentifier(id) },
//	})
//	s.Open(ctx)
//	defer s.Close()
type Session struct {
	opts   Options
	logger *logrus.Entry

	mu    sync.Mutex
	phase Phase
	err   error
	run   *run
}

type run struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	release    nfc.ReleaseFunc // set once the radio is acquired
	cancelOnce sync.Once
	cancelErr  error
}

// NewSession creates an idle Session.
func NewSession(opts Options) *Session {
	if opts.Codec == nil {
		opts.Codec = cardid.HexCodec{}
	}
	if opts.Technology == "" {
		opts.Technology = nfc.TechNfcA
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.WithField("component", "scan")
	}
	return &Session{opts: opts, logger: logger}
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Err returns the failure of the last run that ended in Failed, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Active reports whether a run is in progress.
func (s *Session) Active() bool {
	return s.Phase() != Idle
}

// Open starts a run. It returns false and does nothing if a run is already in
// progress.
func (s *Session) Open(ctx context.Context) bool {
	s.mu.Lock()
	if s.phase != Idle {
		s.mu.Unlock()
		return false
	}
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{cancel: cancel, done: make(chan struct{})}
	s.run = r
	s.err = nil
	s.phase = Acquiring
	s.mu.Unlock()

	go s.execute(runCtx, r)
	return true
}

// Close cancels the current run and blocks until the radio has been released
// and the session is Idle. Closing an idle session is a no-op.
func (s *Session) Close() {
	s.mu.Lock()
	r := s.run
	s.mu.Unlock()
	if r == nil {
		return
	}

	r.cancel()
	r.mu.Lock()
	acquired := r.release != nil
	r.mu.Unlock()
	if acquired {
		s.cancelRequest(r)
	}
	<-r.done
}

// cancelRequest issues CancelTechnologyRequest at most once per run.
func (s *Session) cancelRequest(r *run) {
	r.cancelOnce.Do(func() {
		r.cancelErr = s.opts.Radio.CancelTechnologyRequest()
	})
}

func (s *Session) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
	s.notify(p)
}

func (s *Session) notify(p Phase) {
	s.logger.WithField("phase", p).Debug("scan phase changed")
	if s.opts.OnPhase != nil {
		s.opts.OnPhase(p)
	}
}

func (s *Session) execute(ctx context.Context, r *run) {
	s.notify(Acquiring)

	outcome, identifier, err := s.read(ctx, r)
	s.mu.Lock()
	s.phase = outcome
	if outcome == Failed {
		s.err = err
	}
	s.mu.Unlock()
	s.notify(outcome)

	s.release(r)

	s.mu.Lock()
	s.phase = Idle
	s.run = nil
	s.mu.Unlock()
	s.notify(Idle)
	r.cancel()
	close(r.done)

	switch outcome {
	case Completed:
		s.logger.WithField("identifier", identifier).Info("tag scanned")
		if s.opts.OnComplete != nil {
			s.opts.OnComplete(identifier)
		}
	case Failed:
		s.logger.WithError(err).Warn("scan failed")
		if s.opts.OnFailure != nil {
			s.opts.OnFailure(err)
		}
	case Cancelled:
		s.logger.Debug("scan cancelled")
	}
}

// read runs Acquiring, AwaitingTag and Decoding and returns the terminal phase.
func (s *Session) read(ctx context.Context, r *run) (Phase, string, error) {
	radio := s.opts.Radio

	release, err := radio.Acquire()
	if err != nil {
		return Failed, "", fmt.Errorf("%w: %w", ErrAcquisition, err)
	}
	r.mu.Lock()
	r.release = release
	r.mu.Unlock()

	if err := radio.Start(); err != nil {
		return Failed, "", fmt.Errorf("%w: %w", ErrAcquisition, err)
	}
	if ctx.Err() != nil {
		return Cancelled, "", nil
	}

	s.setPhase(AwaitingTag)
	waitCtx := ctx
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	if err := radio.RequestTechnology(waitCtx, s.opts.Technology); err != nil {
		if waitCtx.Err() != nil || nfc.IsCancelledError(err) {
			return Cancelled, "", nil
		}
		return Failed, "", fmt.Errorf("request %s: %w", s.opts.Technology, err)
	}

	s.setPhase(Decoding)
	tag, err := radio.GetTag()
	if err != nil {
		return Failed, "", fmt.Errorf("%w: %w", ErrDecode, err)
	}
	identifier, err := s.opts.Codec.Encode(tag.ID)
	if err != nil {
		return Failed, "", fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if ctx.Err() != nil {
		return Cancelled, "", nil
	}
	return Completed, identifier, nil
}

// release cancels the technology request and releases the radio if this run
// acquired it.
func (s *Session) release(r *run) {
	r.mu.Lock()
	release := r.release
	r.mu.Unlock()
	if release == nil {
		return
	}

	s.cancelRequest(r)
	var result *multierror.Error
	if r.cancelErr != nil {
		result = multierror.Append(result, fmt.Errorf("cancel technology request: %w", r.cancelErr))
	}
	if err := release(); err != nil {
		result = multierror.Append(result, fmt.Errorf("release radio: %w", err))
	}
	if err := result.ErrorOrNil(); err != nil {
		s.logger.WithError(err).Warn("error releasing radio")
	}
}
