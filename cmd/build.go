package cmd

import (
	"github.com/blacktop/syndicate/internal/syndicate"
	"github.com/blacktop/syndicate/internal/syndicate/bluesky"
	"github.com/blacktop/syndicate/internal/syndicate/discord"
	"github.com/blacktop/syndicate/internal/syndicate/facebook"
	"github.com/blacktop/syndicate/internal/syndicate/instagram"
	"github.com/blacktop/syndicate/internal/syndicate/linkedin"
	"github.com/blacktop/syndicate/internal/syndicate/mastodon"
	"github.com/blacktop/syndicate/internal/syndicate/pinterest"
	"github.com/blacktop/syndicate/internal/syndicate/reddit"
	"github.com/blacktop/syndicate/internal/syndicate/slack"
	"github.com/blacktop/syndicate/internal/syndicate/telegram"
	"github.com/blacktop/syndicate/internal/syndicate/threads"
	"github.com/blacktop/syndicate/internal/syndicate/tiktok"
	"github.com/blacktop/syndicate/internal/syndicate/twitter"
	"github.com/blacktop/syndicate/internal/syndicate/youtube"
)

// constructors lists every supported platform in the order registered
// (and therefore the default dispatch order).
var constructors = []struct {
	name  string
	build func(syndicate.Settings) syndicate.Poster
}{
	{"twitter", func(s syndicate.Settings) syndicate.Poster { return twitter.New(s) }},
	{"mastodon", func(s syndicate.Settings) syndicate.Poster { return mastodon.New(s) }},
	{"bluesky", func(s syndicate.Settings) syndicate.Poster { return bluesky.New(s) }},
	{"instagram", func(s syndicate.Settings) syndicate.Poster { return instagram.New(s) }},
	{"threads", func(s syndicate.Settings) syndicate.Poster { return threads.New(s) }},
	{"facebook", func(s syndicate.Settings) syndicate.Poster { return facebook.New(s) }},
	{"linkedin", func(s syndicate.Settings) syndicate.Poster { return linkedin.New(s) }},
	{"tiktok", func(s syndicate.Settings) syndicate.Poster { return tiktok.New(s) }},
	{"youtube", func(s syndicate.Settings) syndicate.Poster { return youtube.New(s) }},
	{"pinterest", func(s syndicate.Settings) syndicate.Poster { return pinterest.New(s) }},
	{"reddit", func(s syndicate.Settings) syndicate.Poster { return reddit.New(s) }},
	{"discord", func(s syndicate.Settings) syndicate.Poster { return discord.New(s) }},
	{"slack", func(s syndicate.Settings) syndicate.Poster { return slack.New(s) }},
	{"telegram", func(s syndicate.Settings) syndicate.Poster { return telegram.New(s) }},
}

// buildDispatcher loads the merged configuration and instantiates one
// poster per configured platform. Platforms without any settings are
// skipped entirely.
func buildDispatcher(configPath string) (*syndicate.Dispatcher, error) {
	cfg, err := syndicate.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	registry := syndicate.NewRegistry()
	for _, constructor := range constructors {
		if !cfg.Has(constructor.name) {
			continue
		}
		registry.Add(constructor.build(cfg[constructor.name]))
	}
	return syndicate.NewDispatcher(registry), nil
}
