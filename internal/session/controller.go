// Package session owns the per-visitor application state: which view is
// shown, the selected image, the identified medication and the chat
// transcript.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vbonduro/pillpal/internal/domain"
	"github.com/vbonduro/pillpal/internal/imagestore"
	"github.com/vbonduro/pillpal/internal/intake"
	"github.com/vbonduro/pillpal/internal/prompts"
)

var (
	ErrNoImage       = errors.New("no image selected")
	ErrBusy          = errors.New("identification already in progress")
	ErrNotIntake     = errors.New("an image can only be identified from the intake view")
	ErrNotIdentified = errors.New("no medication has been identified")
	ErrEmptyMessage  = errors.New("message is empty")
	ErrChatBusy      = errors.New("a reply is already pending")
	ErrDiscarded     = errors.New("session was reset while the request was in flight")
)

// Identifier is the subset of assistant.Identifier the controller requires.
type Identifier interface {
	Identify(ctx context.Context, img *intake.Image) (*domain.Medication, error)
}

// Replier is the subset of assistant.Conversation the controller requires.
type Replier interface {
	Reply(ctx context.Context, history []domain.ChatMessage, message string, med *domain.Medication) string
}

type Deps struct {
	Identifier Identifier
	Replier    Replier
	Images     imagestore.Store
	Prompts    *prompts.Set
	Logger     *slog.Logger
}

type Outcome int

const (
	OutcomeIdentified Outcome = iota
	OutcomeUnknown
	OutcomeFailed
	OutcomeDiscarded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIdentified:
		return "identified"
	case OutcomeUnknown:
		return "unknown"
	case OutcomeFailed:
		return "failed"
	case OutcomeDiscarded:
		return "discarded"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// ImageRef describes the selected image without its bytes.
type ImageRef struct {
	Key      string
	MIMEType string
	Filename string
	Width    int
	Height   int
}

// State is an immutable snapshot handed to renderers and listeners.
type State struct {
	View       domain.View
	Image      *ImageRef
	Medication *domain.Medication
	Loading    bool
	Chatting   bool
	Error      string
	Transcript []domain.ChatMessage
}

// CanIdentify reports whether the identify control should be enabled.
func (s State) CanIdentify() bool {
	return s.View == domain.ViewIntake && s.Image != nil && !s.Loading
}

// Pristine reports whether the state equals a freshly reset session.
func (s State) Pristine() bool {
	return s.View == domain.ViewIntake && s.Image == nil && s.Medication == nil &&
		s.Error == "" && len(s.Transcript) == 0 && !s.Loading && !s.Chatting
}

type Controller struct {
	id         string
	identifier Identifier
	replier    Replier
	images     imagestore.Store
	prompts    *prompts.Set
	logger     *slog.Logger

	mu         sync.Mutex
	view       domain.View
	image      *intake.Image
	imageRef   *ImageRef
	medication *domain.Medication
	loading    bool
	chatting   bool
	errMsg     string
	transcript []domain.ChatMessage
	epoch      uint64
	lastActive time.Time

	listenerMu   sync.Mutex
	listeners    map[int]func(State)
	nextListener int
}

func NewController(id string, deps Deps) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := deps.Prompts
	if p == nil {
		p = prompts.Default()
	}
	return &Controller{
		id:         id,
		identifier: deps.Identifier,
		replier:    deps.Replier,
		images:     deps.Images,
		prompts:    p,
		logger:     logger.With("session_id", id),
		view:       domain.ViewIntake,
		lastActive: time.Now(),
		listeners:  make(map[int]func(State)),
	}
}

func (c *Controller) ID() string { return c.id }

// SelectImage stores img as the session image, replacing any previous one,
// and clears the error message.
func (c *Controller) SelectImage(ctx context.Context, img *intake.Image) error {
	if img == nil || len(img.Data) == 0 {
		return ErrNoImage
	}

	c.mu.Lock()
	err := c.checkSelectable()
	c.mu.Unlock()
	if err != nil {
		return err
	}

	key, err := c.images.Save(ctx, c.id, img.MIMEType, bytes.NewReader(img.Data))
	if err != nil {
		return fmt.Errorf("failed to store image: %w", err)
	}

	c.mu.Lock()
	if err := c.checkSelectable(); err != nil {
		c.mu.Unlock()
		c.deleteImage(ctx, key)
		return err
	}
	oldKey := c.imageKeyLocked()
	c.image = img
	c.imageRef = &ImageRef{Key: key, MIMEType: img.MIMEType, Filename: img.Filename, Width: img.Width, Height: img.Height}
	c.errMsg = ""
	c.touchLocked()
	c.mu.Unlock()

	c.deleteImage(ctx, oldKey)
	c.logger.Info("image selected", "mime_type", img.MIMEType, "bytes", len(img.Data))
	c.notify()
	return nil
}

func (c *Controller) checkSelectable() error {
	if c.view != domain.ViewIntake {
		return ErrNotIntake
	}
	if c.loading {
		return ErrBusy
	}
	return nil
}

// Identify sends the selected image for identification and settles the
// state according to the outcome. The error is non-nil only when the
// request could not be started.
func (c *Controller) Identify(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	switch {
	case c.view != domain.ViewIntake:
		c.mu.Unlock()
		return OutcomeFailed, ErrNotIntake
	case c.imageRef == nil:
		c.mu.Unlock()
		return OutcomeFailed, ErrNoImage
	case c.loading:
		c.mu.Unlock()
		return OutcomeFailed, ErrBusy
	}
	c.loading = true
	c.errMsg = ""
	c.touchLocked()
	epoch := c.epoch
	img := c.image
	ref := *c.imageRef
	c.mu.Unlock()
	c.notify()

	var (
		med *domain.Medication
		err error
	)
	if img == nil {
		img, err = c.loadImage(ctx, ref)
	}
	if err == nil {
		med, err = c.identifier.Identify(ctx, img)
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		c.logger.Info("identification result discarded after reset")
		return OutcomeDiscarded, nil
	}
	c.loading = false
	c.touchLocked()

	var outcome Outcome
	switch {
	case err != nil:
		outcome = OutcomeFailed
		c.errMsg = c.prompts.Messages.Failed
		c.logger.Error("identification failed", "error", err)
	case med.IsUnknown():
		outcome = OutcomeUnknown
		c.errMsg = c.prompts.Messages.Unknown
		c.logger.Info("medication not identified")
	default:
		outcome = OutcomeIdentified
		c.medication = med
		c.view = domain.ViewResult
		c.image = img
		c.transcript = nil
		greeting, gerr := c.prompts.Greeting(med)
		if gerr != nil {
			c.logger.Error("render greeting failed", "error", gerr)
		} else {
			c.transcript = append(c.transcript, domain.ChatMessage{Role: domain.RoleModel, Content: greeting, SentAt: time.Now()})
		}
		c.logger.Info("medication identified", "name", med.Name)
	}
	c.mu.Unlock()
	c.notify()
	return outcome, nil
}

func (c *Controller) loadImage(ctx context.Context, ref ImageRef) (*intake.Image, error) {
	rc, mimeType, err := c.images.Get(ctx, ref.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return &intake.Image{Data: data, MIMEType: mimeType, Filename: ref.Filename, Width: ref.Width, Height: ref.Height}, nil
}

// Send appends text as a user turn, asks for a reply and appends it. The
// returned message is the model turn.
func (c *Controller) Send(ctx context.Context, text string) (domain.ChatMessage, error) {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	switch {
	case c.view != domain.ViewResult || c.medication == nil:
		c.mu.Unlock()
		return domain.ChatMessage{}, ErrNotIdentified
	case text == "":
		c.mu.Unlock()
		return domain.ChatMessage{}, ErrEmptyMessage
	case c.chatting:
		c.mu.Unlock()
		return domain.ChatMessage{}, ErrChatBusy
	}
	history := append([]domain.ChatMessage(nil), c.transcript...)
	c.transcript = append(c.transcript, domain.ChatMessage{Role: domain.RoleUser, Content: text, SentAt: time.Now()})
	c.chatting = true
	c.touchLocked()
	epoch := c.epoch
	med := c.medication
	c.mu.Unlock()
	c.notify()

	reply := c.replier.Reply(ctx, history, text, med)
	msg := domain.ChatMessage{Role: domain.RoleModel, Content: reply, SentAt: time.Now()}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return domain.ChatMessage{}, ErrDiscarded
	}
	c.transcript = append(c.transcript, msg)
	c.chatting = false
	c.touchLocked()
	c.mu.Unlock()
	c.notify()
	return msg, nil
}

// Reset returns to the intake view from any state. Requests still in flight
// settle into nothing.
func (c *Controller) Reset(ctx context.Context) {
	c.mu.Lock()
	oldKey := c.imageKeyLocked()
	c.view = domain.ViewIntake
	c.image = nil
	c.imageRef = nil
	c.medication = nil
	c.loading = false
	c.chatting = false
	c.errMsg = ""
	c.transcript = nil
	c.epoch++
	c.touchLocked()
	c.mu.Unlock()

	c.deleteImage(ctx, oldKey)
	c.logger.Info("session reset")
	c.notify()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	s := State{
		View:       c.view,
		Loading:    c.loading,
		Chatting:   c.chatting,
		Error:      c.errMsg,
		Transcript: append([]domain.ChatMessage(nil), c.transcript...),
	}
	if c.imageRef != nil {
		ref := *c.imageRef
		s.Image = &ref
	}
	if c.medication != nil {
		m := *c.medication
		s.Medication = &m
	}
	return s
}

// Subscribe registers fn to run after every state change. Listeners run
// synchronously on the goroutine that made the change, outside the state
// lock.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.listenerMu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.listenerMu.Unlock()

	return func() {
		c.listenerMu.Lock()
		delete(c.listeners, id)
		c.listenerMu.Unlock()
	}
}

func (c *Controller) notify() {
	state := c.State()

	c.listenerMu.Lock()
	fns := make([]func(State), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.listenerMu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

// Snapshot returns the persistable part of the state.
func (c *Controller) Snapshot() *domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := &domain.Snapshot{
		SessionID:  c.id,
		View:       c.view,
		Medication: c.medication,
		Transcript: append([]domain.ChatMessage(nil), c.transcript...),
		Error:      c.errMsg,
		UpdatedAt:  c.lastActive,
	}
	if c.imageRef != nil {
		snap.ImageKey = c.imageRef.Key
		snap.ImageMIME = c.imageRef.MIMEType
	}
	return snap
}

// restore loads a persisted snapshot. Image bytes are fetched lazily from
// the image store when needed.
func (c *Controller) restore(snap *domain.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = snap.View
	if c.view != domain.ViewResult || snap.Medication == nil {
		c.view = domain.ViewIntake
	} else {
		c.medication = snap.Medication
	}
	if snap.ImageKey != "" {
		c.imageRef = &ImageRef{Key: snap.ImageKey, MIMEType: snap.ImageMIME}
	}
	c.errMsg = snap.Error
	c.transcript = append([]domain.ChatMessage(nil), snap.Transcript...)
	if !snap.UpdatedAt.IsZero() {
		c.lastActive = snap.UpdatedAt
	}
}

func (c *Controller) touchLocked() {
	c.lastActive = time.Now()
}

func (c *Controller) idle(cutoff time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive.Before(cutoff) && !c.loading && !c.chatting
}

func (c *Controller) imageKeyLocked() string {
	if c.imageRef == nil {
		return ""
	}
	return c.imageRef.Key
}

func (c *Controller) deleteImage(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := c.images.Delete(ctx, key); err != nil && !errors.Is(err, imagestore.ErrNotFound) {
		c.logger.Error("failed to delete image", "key", key, "error", err)
	}
}
