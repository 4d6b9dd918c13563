package instagram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/storeberg/crosspost/internal/locator"
	"github.com/storeberg/crosspost/internal/publish"
)

// Container poll settings. Polls run on a fixed short interval; the
// attempt is additionally capped by a wall clock and a poll count so the
// machine always terminates.
const (
	defaultPollInterval = 5 * time.Second
	defaultPollTimeout  = 4 * time.Minute
	defaultMaxPolls     = 40
)

// containerState tracks one publish attempt through the container
// protocol.
type containerState int

const (
	stateCreated containerState = iota
	stateContainerPending
	stateFinished
	stateError
	stateTimeout
)

func (s containerState) String() string {
	switch s {
	case stateCreated:
		return "CREATED"
	case stateContainerPending:
		return "CONTAINER_PENDING"
	case stateFinished:
		return "FINISHED"
	case stateError:
		return "ERROR"
	case stateTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// Publisher runs the create-container → poll-status → publish machine.
// One machine instance is built per publish attempt; an abandoned
// container is never reused — a retry starts from a fresh container.
type Publisher struct {
	client       *client
	pollInterval time.Duration
	pollTimeout  time.Duration
	maxPolls     int
}

// NewPublisher creates an Instagram publisher with default poll settings.
func NewPublisher() *Publisher {
	return &Publisher{
		client: &client{
			httpClient: &http.Client{Timeout: defaultTimeout},
			baseURL:    defaultBaseURL,
		},
		pollInterval: defaultPollInterval,
		pollTimeout:  defaultPollTimeout,
		maxPolls:     defaultMaxPolls,
	}
}

// Publish posts the media to the target account and returns the platform
// post id. Whether the attempt takes the synchronous image path or the
// asynchronous video path is decided by the durable reference's content
// type — never by a caller-supplied field name.
func (p *Publisher) Publish(ctx context.Context, sub publish.Submission, ref locator.Ref, target publish.Target) (string, error) {
	m := &machine{
		pub:     p,
		ref:     ref,
		caption: sub.Caption(true),
		target:  target,
		state:   stateCreated,
	}
	return m.run(ctx)
}

// machine is one attempt's pass through the container protocol.
type machine struct {
	pub         *Publisher
	ref         locator.Ref
	caption     string
	target      publish.Target
	state       containerState
	containerID string
}

func (m *machine) run(ctx context.Context) (string, error) {
	video := strings.HasPrefix(m.ref.ContentType, "video/")

	// CREATED: build the container. Image containers are synchronous and
	// skip the pending state entirely.
	var err error
	if video {
		m.containerID, err = m.pub.client.createVideoContainer(ctx,
			m.target.AccountID, m.target.AccessToken, m.ref.PublicURL, m.caption)
	} else {
		m.containerID, err = m.pub.client.createImageContainer(ctx,
			m.target.AccountID, m.target.AccessToken, m.ref.PublicURL, m.caption)
	}
	if err != nil {
		m.state = stateError
		return "", err
	}

	if video {
		m.state = stateContainerPending
		if err := m.awaitContainer(ctx); err != nil {
			return "", err
		}
	} else {
		m.state = stateFinished
	}

	postID, err := m.pub.client.publishContainer(ctx,
		m.target.AccountID, m.target.AccessToken, m.containerID)
	if err != nil {
		m.state = stateError
		return "", err
	}

	log.Info().
		Str("accountId", m.target.AccountID).
		Str("containerId", m.containerID).
		Str("postId", postID).
		Msg("Instagram post published")
	return postID, nil
}

// awaitContainer polls the container on a fixed interval until the status
// is terminal, the wall clock cap elapses, or the poll budget runs out.
// Each poll is a single suspending HTTP call; cancellation of ctx aborts
// between polls. An abandoned container is not retried.
func (m *machine) awaitContainer(ctx context.Context) error {
	deadline := time.Now().Add(m.pub.pollTimeout)

	for poll := 0; poll < m.pub.maxPolls; poll++ {
		status, err := m.pub.client.containerStatus(ctx, m.target.AccessToken, m.containerID)
		if err != nil {
			// Transient errors: keep polling, the budget bounds us.
			log.Warn().Err(err).Str("containerId", m.containerID).
				Msg("Container status poll error, retrying")
		} else {
			switch status {
			case "FINISHED":
				m.state = stateFinished
				log.Debug().Str("containerId", m.containerID).Int("polls", poll+1).
					Msg("Container processing finished")
				return nil
			case "ERROR":
				m.state = stateError
				return fmt.Errorf("container %s: processing failed on Instagram's side", m.containerID)
			case "IN_PROGRESS":
				log.Debug().Str("containerId", m.containerID).
					Dur("nextPoll", m.pub.pollInterval).Msg("Container still processing")
			default:
				log.Warn().Str("containerId", m.containerID).Str("status", status).
					Msg("Unknown container status")
			}
		}

		if time.Now().After(deadline) {
			break
		}

		select {
		case <-ctx.Done():
			m.state = stateTimeout
			return fmt.Errorf("container %s: abandoned: %w", m.containerID, ctx.Err())
		case <-time.After(m.pub.pollInterval):
		}
	}

	m.state = stateTimeout
	return fmt.Errorf("container %s: timed out after %s waiting for processing", m.containerID, m.pub.pollTimeout)
}
