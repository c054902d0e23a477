package config

import "time"

// TimeoutConfig holds every wait bound used against the portal
type TimeoutConfig struct {
	// Login waits for the network to go idle after submitting the form
	Login time.Duration
	// Page bounds a full page navigation
	Page time.Duration
	// NetworkIdle bounds the idle wait on detail pages
	NetworkIdle time.Duration
	// NextPage bounds the wait for the listing's next control to change target
	NextPage time.Duration
	// Click bounds a direct click before falling back to a scripted one
	Click time.Duration
	// Expand bounds the wait for a line-item panel to open
	Expand time.Duration
	// Settle is a fixed pause after detail pages go idle
	Settle time.Duration
}

// DefaultTimeoutConfig returns the default portal timeouts
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Login:       30 * time.Second,
		Page:        60 * time.Second,
		NetworkIdle: 30 * time.Second,
		NextPage:    10 * time.Second,
		Click:       1500 * time.Millisecond,
		Expand:      2500 * time.Millisecond,
		Settle:      800 * time.Millisecond,
	}
}

func loadTimeoutConfig() TimeoutConfig {
	d := DefaultTimeoutConfig()
	return TimeoutConfig{
		Login:       getEnvAsDuration("LOGIN_TIMEOUT", d.Login),
		Page:        getEnvAsDuration("PAGE_TIMEOUT", d.Page),
		NetworkIdle: getEnvAsDuration("NETWORK_IDLE_TIMEOUT", d.NetworkIdle),
		NextPage:    getEnvAsDuration("NEXT_PAGE_TIMEOUT", d.NextPage),
		Click:       getEnvAsDuration("CLICK_TIMEOUT", d.Click),
		Expand:      getEnvAsDuration("EXPAND_TIMEOUT", d.Expand),
		Settle:      getEnvAsDuration("SETTLE_DELAY", d.Settle),
	}
}
