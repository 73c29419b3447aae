package config

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// ChannelChange is one reload that changed the channel list.
type ChannelChange struct {
	Config  *Config
	Added   []string
	Removed []string
}

// WatchChannels reloads path whenever it is written and calls onChange when
// the channel list differs from the last accepted one, starting from current.
// It runs until ctx is cancelled. An invalid file is logged and skipped.
func WatchChannels(ctx context.Context, path string, current []string, onChange func(ChannelChange)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}
	slog.Info("config: watching channel list", "path", path, "channels", current)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Atomic saves arrive as Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if change, ok := reloadChannels(path, current); ok {
				current = change.Config.Client.Channels
				onChange(change)
			}
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

// reloadChannels loads path and diffs its channel list against current.
func reloadChannels(path string, current []string) (ChannelChange, bool) {
	cfg, err := Load(path)
	if err != nil {
		slog.Error("config: reload failed, keeping channel list", "path", path, "err", err)
		return ChannelChange{}, false
	}

	added, removed := DiffChannels(current, cfg.Client.Channels)
	if len(added) == 0 && len(removed) == 0 {
		slog.Debug("config: reloaded, channel list unchanged", "path", path)
		return ChannelChange{}, false
	}
	slog.Info("config: channel list changed", "path", path, "added", added, "removed", removed)
	return ChannelChange{Config: cfg, Added: added, Removed: removed}, true
}

// DiffChannels compares two channel lists and returns the names only present
// in next (added) and only present in prev (removed), each in list order.
func DiffChannels(prev, next []string) (added, removed []string) {
	inPrev := make(map[string]bool, len(prev))
	for _, ch := range prev {
		inPrev[ch] = true
	}
	inNext := make(map[string]bool, len(next))
	for _, ch := range next {
		inNext[ch] = true
		if !inPrev[ch] {
			added = append(added, ch)
		}
	}
	for _, ch := range prev {
		if !inNext[ch] {
			removed = append(removed, ch)
		}
	}
	return added, removed
}
