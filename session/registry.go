package session

import (
	"sync"

	"github.com/agentjido/jido-shell/log"
	"github.com/agentjido/jido-shell/shellerr"
)

// Registry tracks live session servers by id. Sessions deregister
// themselves on Stop; supervision is isolated, so one session's crash
// never takes down another (workers recover their own panics and
// surface them as command_crashed events).
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Server
	logger   log.LibraryLogger
}

// NewRegistry creates an empty session registry.
func NewRegistry(logger log.LibraryLogger) *Registry {
	if logger == nil {
		logger = log.NoOpLogger{}
	}
	return &Registry{
		sessions: make(map[string]*Server),
		logger:   logger,
	}
}

// Create builds a session server from opts and registers it. The
// server deregisters itself when stopped.
func (r *Registry) Create(opts Options) (*Server, error) {
	srv, err := New(opts)
	if err != nil {
		return nil, err
	}

	srv.onStop = r.remove

	r.mu.Lock()
	r.sessions[srv.ID()] = srv
	r.mu.Unlock()

	r.logger.Debug("registered session %s", srv.ID())
	return srv, nil
}

// Get looks up a live session by id.
func (r *Registry) Get(id string) (*Server, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	srv, ok := r.sessions[id]
	if !ok {
		return nil, shellerr.Newf(shellerr.SessionNotFound, "no session with id %s", id).
			WithContext("session_id", id)
	}
	return srv, nil
}

// List returns the ids of all live sessions.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()

	r.logger.Debug("deregistered session %s", id)
}

// Shutdown stops every live session.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	servers := make([]*Server, 0, len(r.sessions))
	for _, srv := range r.sessions {
		servers = append(servers, srv)
	}
	r.mu.Unlock()

	for _, srv := range servers {
		srv.Stop()
	}
}
