package transport

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID            int
	ChatID        int64
	FromID        int64
	FromUsername  string
	FromFirstName string
	FromLastName  string
	Text          string
	IsGroup       bool
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

// MediaRef is a sent media message plus the platform file reference that
// can be reused to send the same blob again without uploading it.
type MediaRef struct {
	MessageRef
	FileID string
}

type MediaKind string

const (
	MediaPhoto MediaKind = "photo"
	MediaVideo MediaKind = "video"
)

// InputFile is either a previously issued platform reference (Ref) or a
// local file to upload (Path). Ref wins when both are set.
type InputFile struct {
	Ref  string
	Path string
}

func (f InputFile) IsUpload() bool { return f.Ref == "" }

type MediaItem struct {
	Kind    MediaKind
	File    InputFile
	Caption string
}

// Button is a single inline keyboard button. Exactly one of URL or Data is set.
type Button struct {
	Text string
	URL  string
	Data string
}

type Keyboard struct {
	Rows [][]Button
}

func (k *Keyboard) Empty() bool {
	if k == nil {
		return true
	}
	for _, r := range k.Rows {
		if len(r) > 0 {
			return false
		}
	}
	return true
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	Keyboard       *Keyboard
}

// Sender is the outbound platform boundary used by the delivery engine.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to ChatTarget, file InputFile, caption string, opt *SendOptions) (MediaRef, error)
	SendVideo(ctx context.Context, to ChatTarget, file InputFile, caption string, opt *SendOptions) (MediaRef, error)
	// SendMediaGroup sends items as one grouped message and returns one
	// reference per item, in order. opt.Keyboard is ignored: albums cannot
	// carry one.
	SendMediaGroup(ctx context.Context, to ChatTarget, items []MediaItem, opt *SendOptions) ([]MediaRef, error)
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

type Adapter interface {
	Sender
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}
