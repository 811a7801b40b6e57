package transfer

import (
	"context"

	"github.com/transana/srbxfer/internal/remote"
)

// Move runs the transfer and then deletes the source: the local file after
// an upload, the remote object after a download. The source is kept when
// the transfer failed or was cancelled.
func (s *Session) Move(ctx context.Context, req Request) (*Result, error) {
	res, err := s.Run(ctx, req)
	if err != nil || !res.Successful() {
		return res, err
	}

	switch req.Direction {
	case Upload:
		path := req.LocalPath()
		if err := s.opts.FS.Remove(path); err != nil {
			lerr := localErr("remove", path, err)
			s.report(lerr)
			return res, lerr
		}
		s.log.Info().Str("file", req.FileName).Str("path", path).Msg("local source removed after upload")
	case Download:
		if err := s.Remove(ctx, req.Connection, req.Collection, req.FileName); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Remove deletes a remote object.
func (s *Session) Remove(ctx context.Context, store remote.Store, collection, name string) error {
	if store == nil {
		return ErrInvalidRequest
	}
	if err := store.Remove(ctx, collection, name); err != nil {
		rerr := remoteErr("remove", err)
		s.report(rerr)
		s.log.Error().Err(rerr).Str("collection", collection).Str("file", name).Msg("remove failed")
		return rerr
	}
	s.log.Info().Str("collection", collection).Str("file", name).Msg("remote object removed")
	return nil
}
