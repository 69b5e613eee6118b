package tgui

import "errors"

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes.
// NOTE: This is the length of the full string: "prefix:key:payload".
const MaxCallbackDataLen = 64

// MaxAlbumItems is the largest number of items Telegram accepts in one media group.
const MaxAlbumItems = 10

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")
