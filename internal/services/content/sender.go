package content

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"funnelbot/internal/model"
	kit "funnelbot/internal/transport"
	logx "funnelbot/pkg/logx"
	"funnelbot/pkg/tgui"
)

type Options struct {
	// MediaDir is the root relative storage paths are resolved against.
	MediaDir string
	// ParseMode applies to text and captions ("HTML" by default).
	ParseMode string
	// AlbumKeyboardPrompt is the text of the message carrying an album's keyboard.
	AlbumKeyboardPrompt string
}

// Sender delivers content to one recipient over one bot session.
type Sender struct {
	tx    kit.Sender
	cache *Cache
	kb    *Keyboards
	opts  Options
	log   logx.Logger
}

func NewSender(tx kit.Sender, cache *Cache, kb *Keyboards, opts Options, log logx.Logger) *Sender {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.ParseMode == "" {
		opts.ParseMode = "HTML"
	}
	return &Sender{tx: tx, cache: cache, kb: kb, opts: opts, log: log}
}

// Send renders c to r's chat. It reports whether the platform confirmed the
// delivery; every failure is logged here.
func (s *Sender) Send(ctx context.Context, r model.Recipient, c model.Content) bool {
	err := s.send(ctx, kit.ChatTarget{ChatID: r.ChatID}, c)
	if err != nil {
		s.log.Warn("content send failed",
			logx.Int64("recipient_id", r.ID),
			logx.Int64("chat_id", r.ChatID),
			logx.String("kind", string(c.Kind)),
			logx.Int64("step_id", c.StepID),
			logx.Err(err),
		)
		return false
	}
	return true
}

func (s *Sender) send(ctx context.Context, to kit.ChatTarget, c model.Content) error {
	opt := &kit.SendOptions{ParseMode: s.opts.ParseMode, Keyboard: s.kb.Build(c.Buttons, c.StepID)}
	switch c.Kind {
	case model.KindText:
		if strings.TrimSpace(c.Text) == "" {
			return ErrEmptyContent
		}
		_, err := s.tx.SendText(ctx, to, c.Text, opt)
		return err
	case model.KindPhoto, model.KindVideo:
		if len(c.Assets) == 0 {
			return s.captionOnly(ctx, to, c.Text, opt, ErrMissingAsset)
		}
		return s.sendSingle(ctx, to, mediaKind(c.Kind), c.Assets[0], c.Text, opt)
	case model.KindAlbum:
		return s.sendAlbum(ctx, to, c, opt)
	default:
		return fmt.Errorf("content: unknown kind %q", c.Kind)
	}
}

// resolved is an asset ready to send: by reference when cached, else by path.
type resolved struct {
	asset model.MediaAsset
	file  kit.InputFile
}

func (r resolved) cached() bool { return !r.file.IsUpload() }

func (s *Sender) resolve(ctx context.Context, a model.MediaAsset) (resolved, error) {
	ref := a.RemoteRef
	if ref == "" {
		cached, ok, err := s.cache.Read(ctx, a.ID)
		if err != nil {
			s.log.Warn("upload reference lookup failed; uploading", logx.Int64("asset_id", a.ID), logx.Err(err))
		} else if ok {
			ref = cached
		}
	}
	if ref != "" {
		return resolved{asset: a, file: kit.InputFile{Ref: ref}}, nil
	}

	path := a.StoragePath
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.opts.MediaDir, path)
	}
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return resolved{}, fmt.Errorf("%w: asset %d at %s", ErrMissingAsset, a.ID, path)
	}
	return resolved{asset: a, file: kit.InputFile{Path: path}}, nil
}

func (s *Sender) sendSingle(ctx context.Context, to kit.ChatTarget, kind kit.MediaKind, a model.MediaAsset, caption string, opt *kit.SendOptions) error {
	r, err := s.resolve(ctx, a)
	if errors.Is(err, ErrMissingAsset) {
		s.log.Warn("media missing; falling back to caption", logx.Int64("asset_id", a.ID), logx.Err(err))
		return s.captionOnly(ctx, to, caption, opt, err)
	}
	if err != nil {
		return err
	}
	return s.sendResolved(ctx, to, kind, r, caption, opt)
}

func (s *Sender) sendResolved(ctx context.Context, to kit.ChatTarget, kind kit.MediaKind, r resolved, caption string, opt *kit.SendOptions) error {
	var (
		ref kit.MediaRef
		err error
	)
	if kind == kit.MediaVideo {
		ref, err = s.tx.SendVideo(ctx, to, r.file, caption, opt)
	} else {
		ref, err = s.tx.SendPhoto(ctx, to, r.file, caption, opt)
	}
	if err != nil {
		return err
	}
	if !r.cached() {
		s.remember(ctx, r.asset.ID, ref.FileID)
	}
	return nil
}

func (s *Sender) sendAlbum(ctx context.Context, to kit.ChatTarget, c model.Content, opt *kit.SendOptions) error {
	items := make([]resolved, 0, len(c.Assets))
	for _, a := range c.Assets {
		r, err := s.resolve(ctx, a)
		if err != nil {
			s.log.Warn("album item skipped", logx.Int64("asset_id", a.ID), logx.Err(err))
			continue
		}
		items = append(items, r)
	}

	switch len(items) {
	case 0:
		return s.captionOnly(ctx, to, c.Text, opt, ErrMissingAsset)
	case 1:
		return s.sendResolved(ctx, to, assetKind(items[0].asset), items[0], c.Text, opt)
	}

	for start := 0; start < len(items); start += tgui.MaxAlbumItems {
		chunk := items[start:min(start+tgui.MaxAlbumItems, len(items))]
		group := make([]kit.MediaItem, len(chunk))
		for i, r := range chunk {
			group[i] = kit.MediaItem{Kind: assetKind(r.asset), File: r.file}
		}
		if start == 0 {
			group[0].Caption = c.Text
		}
		refs, err := s.tx.SendMediaGroup(ctx, to, group, &kit.SendOptions{ParseMode: opt.ParseMode})
		if err != nil {
			return err
		}
		for i, r := range chunk {
			if r.cached() || i >= len(refs) {
				continue
			}
			s.remember(ctx, r.asset.ID, refs[i].FileID)
		}
	}

	if opt.Keyboard.Empty() {
		return nil
	}
	// Media groups cannot carry a keyboard; it goes in a trailing message.
	_, err := s.tx.SendText(ctx, to, s.opts.AlbumKeyboardPrompt, &kit.SendOptions{Keyboard: opt.Keyboard})
	return err
}

func (s *Sender) captionOnly(ctx context.Context, to kit.ChatTarget, caption string, opt *kit.SendOptions, cause error) error {
	if strings.TrimSpace(caption) == "" {
		return fmt.Errorf("%w: %w", ErrEmptyContent, cause)
	}
	_, err := s.tx.SendText(ctx, to, caption, opt)
	return err
}

// remember caches a fresh upload reference. The send already succeeded, so a
// failed write only costs a re-upload next time.
func (s *Sender) remember(ctx context.Context, assetID int64, ref string) {
	if ref == "" {
		return
	}
	if err := s.cache.Write(ctx, assetID, ref); err != nil {
		s.log.Warn("upload reference not cached", logx.Int64("asset_id", assetID), logx.Err(err))
	}
}

func mediaKind(k model.ContentKind) kit.MediaKind {
	if k == model.KindVideo {
		return kit.MediaVideo
	}
	return kit.MediaPhoto
}

func assetKind(a model.MediaAsset) kit.MediaKind {
	if a.Kind == model.MediaVideo {
		return kit.MediaVideo
	}
	return kit.MediaPhoto
}
