package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"timebox/pkg/credential"
	"timebox/pkg/session"
)

const (
	defaultCheckInterval = 5 * time.Second
	shutdownTimeout      = 10 * time.Second
)

const (
	msgRejected     = "Invalid or expired session!"
	msgLimitReached = "Session time limit reached."
	msgNoCredential = "Could not retrieve browser session ID."
	msgPaused       = "Session paused. Updating database..."
)

// ErrAborted is returned by a Prompter when the user closes the input.
var ErrAborted = errors.New("input aborted")

type Prompter interface {
	Prompt(prompt string) (string, error)
}

// Loop drives one interactive run: pick or create a session, fetch the
// credential, then hold the session open until interrupted or expired.
type Loop struct {
	Store         session.Store
	Acquirer      credential.Acquirer
	Prompter      Prompter
	Out           io.Writer
	Logger        *slog.Logger
	CheckInterval time.Duration
	Clock         func() time.Time
}

func (l *Loop) Run(ctx context.Context) error {
	err := l.run(ctx)
	if errors.Is(err, ErrAborted) {
		return nil
	}
	return err
}

func (l *Loop) run(ctx context.Context) error {
	userID, err := l.promptRequired("Enter your unique user ID: ")
	if err != nil {
		return err
	}

	var opts []session.Option
	if l.Clock != nil {
		opts = append(opts, session.WithClock(l.Clock))
	}
	m := session.NewManager(userID, l.Store, opts...)

	sessionID, err := l.Prompter.Prompt("Enter session ID (press enter for new session): ")
	if err != nil {
		return err
	}
	sessionID = strings.TrimSpace(sessionID)

	if sessionID != "" {
		ok, err := m.ValidateSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if !ok {
			l.println(msgRejected)
			granted, err := l.offerEmergency(ctx, m, sessionID)
			if err != nil || !granted {
				return err
			}
		} else if _, err := m.Activate(ctx, sessionID); err != nil {
			return err
		}
		l.Logger.Info("session resumed", "user", userID, "session", sessionID)
	} else {
		minutes, err := l.promptMinutes()
		if err != nil {
			return err
		}
		sessionID, err = m.CreateSession(ctx, minutes)
		if err != nil {
			return err
		}
		l.printf("New session created. ID: %s (Save this for emergency access!)\n", sessionID)
		l.Logger.Info("session created", "user", userID, "session", sessionID, "minutes", minutes)
	}

	l.acquire(ctx)

	return l.hold(ctx, m, sessionID)
}

func (l *Loop) offerEmergency(ctx context.Context, m *session.Manager, sessionID string) (bool, error) {
	answer, err := l.Prompter.Prompt("Use one-time emergency access? (y/N): ")
	if err != nil {
		return false, err
	}
	if !strings.EqualFold(strings.TrimSpace(answer), "y") {
		return false, nil
	}

	granted, err := m.EmergencyAccess(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if !granted {
		l.println("Emergency access unavailable.")
		l.Logger.Info("emergency access denied", "user", m.UserID(), "session", sessionID)
		return false, nil
	}

	l.printf("Emergency access granted for %s.\n", session.EmergencyGrace)
	l.Logger.Info("emergency access granted", "user", m.UserID(), "session", sessionID)
	return true, nil
}

func (l *Loop) acquire(ctx context.Context) {
	cred, err := l.Acquirer.Acquire(ctx)
	switch {
	case err == nil:
		l.printf("Browser Session ID: %s\n", cred)
	case errors.Is(err, credential.ErrNotFound):
		l.println(msgNoCredential)
	default:
		l.Logger.Error("acquire credential", "error", err)
		l.println(msgNoCredential)
	}
}

// hold re-validates every CheckInterval. On interruption it records the
// session as inactive once; a failure there is returned, not retried.
func (l *Loop) hold(ctx context.Context, m *session.Manager, sessionID string) error {
	interval := l.CheckInterval
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.println("\n" + msgPaused)
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := m.Deactivate(sctx, sessionID); err != nil {
				return fmt.Errorf("pause session: %w", err)
			}
			l.Logger.Info("session paused", "user", m.UserID(), "session", sessionID)
			return nil

		case <-ticker.C:
			ok, err := m.ValidateSession(ctx, sessionID)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				return err
			}
			if !ok {
				l.println(msgLimitReached)
				l.Logger.Info("session expired", "user", m.UserID(), "session", sessionID)
				return nil
			}
		}
	}
}

func (l *Loop) promptRequired(prompt string) (string, error) {
	for {
		v, err := l.Prompter.Prompt(prompt)
		if err != nil {
			return "", err
		}
		if v = strings.TrimSpace(v); v != "" {
			return v, nil
		}
	}
}

func (l *Loop) promptMinutes() (int, error) {
	for {
		v, err := l.Prompter.Prompt("Enter daily time limit (minutes): ")
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err == nil && n >= 0 {
			return n, nil
		}
		l.println("Please enter a whole number of minutes.")
	}
}

func (l *Loop) println(msg string) {
	fmt.Fprintln(l.Out, msg)
}

func (l *Loop) printf(format string, args ...any) {
	fmt.Fprintf(l.Out, format, args...)
}
