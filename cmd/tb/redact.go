package main

import (
	"net/url"

	"taskboard/internal/config"
)

// redact hides the password in a postgres URL.
func redact(cfg config.Config) config.Config {
	if cfg.Store.DatabaseURL == "" {
		return cfg
	}
	u, err := url.Parse(cfg.Store.DatabaseURL)
	if err != nil || u.User == nil {
		return cfg
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
		cfg.Store.DatabaseURL = u.String()
	}
	return cfg
}
