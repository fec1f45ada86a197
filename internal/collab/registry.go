package collab

import (
	"context"
	"errors"
	"sync"
	"time"

	"burnt-beats-be/internal/dto"
	"burnt-beats-be/internal/pkg/logger"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("collaboration session not found")

// errSessionClosed signals Join lost the race against session teardown and
// must retry with a fresh session.
var errSessionClosed = errors.New("session closed")

// StateLoader seeds a session from persisted state on first join.
type StateLoader interface {
	LoadResourceState(ctx context.Context, songId uuid.UUID) (string, error)
}

// StateFlusher writes the final lyric snapshot back when a session is
// destroyed, so last-write-wins state up to the last disconnect survives.
type StateFlusher interface {
	SaveResourceState(ctx context.Context, songId uuid.UUID, lyrics string) error
}

type Participant struct {
	UserId      uuid.UUID
	DisplayName string
}

// session is the live shared state for one song. Roster changes happen under
// the registry lock, document edits only under the session lock, so edits on
// different songs never contend.
type session struct {
	mu           sync.Mutex
	songId       uuid.UUID
	participants map[uuid.UUID]Participant // connection id -> participant
	lyrics       string
	updatedAt    time.Time
	seeded       bool
	closed       bool
}

// SessionSnapshot is the initial-sync view returned from Join.
type SessionSnapshot struct {
	SongId       uuid.UUID
	Lyrics       string
	Participants []dto.ParticipantInfo
	UpdatedAt    time.Time
}

// EditEvent is the result of a successfully applied edit, ready for fan-out.
type EditEvent struct {
	SongId    uuid.UUID
	AuthorId  uuid.UUID // author's connection id, excluded from broadcast
	UserId    uuid.UUID
	Lyrics    string
	UpdatedAt time.Time
}

// Registry owns all live collaboration sessions. A session exists iff it has
// at least one participant: creation happens inside Join, deletion inside the
// same critical section that removes the last participant.
type Registry struct {
	mu         sync.RWMutex
	sessions   map[uuid.UUID]*session
	membership map[uuid.UUID]map[uuid.UUID]struct{} // connection id -> joined song ids
	loader     StateLoader
	flusher    StateFlusher
	logger     logger.ILogger
}

func NewRegistry(loader StateLoader, flusher StateFlusher, log logger.ILogger) *Registry {
	return &Registry{
		sessions:   make(map[uuid.UUID]*session),
		membership: make(map[uuid.UUID]map[uuid.UUID]struct{}),
		loader:     loader,
		flusher:    flusher,
		logger:     log,
	}
}

// Join attaches a participant, lazily creating and seeding the session, and
// returns the full current state for initial client sync. The returned
// snapshot always observes fully-applied edits because it is taken under the
// session lock.
func (r *Registry) Join(ctx context.Context, songId, connId uuid.UUID, p Participant) (*SessionSnapshot, error) {
	for {
		r.mu.Lock()
		s, ok := r.sessions[songId]
		created := false
		if !ok {
			s = &session{
				songId:       songId,
				participants: make(map[uuid.UUID]Participant),
			}
			r.sessions[songId] = s
			created = true
		}
		r.mu.Unlock()

		if err := r.seed(ctx, s); err != nil {
			if errors.Is(err, errSessionClosed) {
				// Lost the race against the last participant leaving; the
				// map entry is gone, create a fresh session.
				continue
			}
			if created {
				r.dropIfEmpty(songId, s)
			}
			return nil, err
		}

		// Attach the participant and record the membership index in one
		// critical section. A reap running in between would otherwise miss
		// the roster entry and leave it behind forever.
		r.mu.Lock()
		if r.sessions[songId] != s {
			// Session was torn down while seeding, retry.
			r.mu.Unlock()
			continue
		}
		s.mu.Lock()
		s.participants[connId] = p
		snapshot := r.snapshotLocked(s)
		if _, ok := r.membership[connId]; !ok {
			r.membership[connId] = make(map[uuid.UUID]struct{})
		}
		r.membership[connId][songId] = struct{}{}
		s.mu.Unlock()
		r.mu.Unlock()

		r.logger.Info("SessionRegistry", "Participant joined", map[string]interface{}{
			"song_id": songId, "connection_id": connId, "user_id": p.UserId,
		})
		return snapshot, nil
	}
}

// Leave detaches a participant. Unknown connections are a no-op. When the
// roster empties, the session is deleted in the same step and its final
// lyric snapshot flushed back to storage. Returns the departed participant
// so callers can announce it, and false for the no-op case.
func (r *Registry) Leave(ctx context.Context, songId, connId uuid.UUID) (Participant, bool) {
	r.mu.Lock()
	s, ok := r.sessions[songId]
	if !ok {
		delete(r.membership[connId], songId)
		r.mu.Unlock()
		return Participant{}, false
	}

	s.mu.Lock()
	departed, present := s.participants[connId]
	delete(s.participants, connId)
	var flushLyrics string
	destroyed := false
	if len(s.participants) == 0 {
		s.closed = true
		destroyed = true
		flushLyrics = s.lyrics
		delete(r.sessions, songId)
	}
	seeded := s.seeded
	s.mu.Unlock()

	if m, ok := r.membership[connId]; ok {
		delete(m, songId)
		if len(m) == 0 {
			delete(r.membership, connId)
		}
	}
	r.mu.Unlock()

	if destroyed {
		r.logger.Info("SessionRegistry", "Session destroyed", map[string]interface{}{"song_id": songId})
		if r.flusher != nil && seeded {
			if err := r.flusher.SaveResourceState(ctx, songId, flushLyrics); err != nil {
				r.logger.Warn("SessionRegistry", "Failed to flush session state", map[string]interface{}{
					"song_id": songId, "error": err.Error(),
				})
			}
		}
	}

	return departed, present
}

// Departure records one session a reaped connection was removed from.
type Departure struct {
	SongId      uuid.UUID
	Participant Participant
}

// LeaveAll removes a connection from every session it participates in. Used
// by the reap path when a connection dies.
func (r *Registry) LeaveAll(ctx context.Context, connId uuid.UUID) []Departure {
	r.mu.RLock()
	songIds := make([]uuid.UUID, 0, len(r.membership[connId]))
	for id := range r.membership[connId] {
		songIds = append(songIds, id)
	}
	r.mu.RUnlock()

	departures := make([]Departure, 0, len(songIds))
	for _, songId := range songIds {
		if p, ok := r.Leave(ctx, songId, connId); ok {
			departures = append(departures, Departure{SongId: songId, Participant: p})
		}
	}
	return departures
}

// ApplyEdit mutates the authoritative snapshot (last-write-wins) and returns
// the event for fan-out. Editing a song with no live session is a
// client-visible error, not a server fault.
func (r *Registry) ApplyEdit(songId, connId uuid.UUID, lyrics string) (*EditEvent, error) {
	r.mu.RLock()
	s, ok := r.sessions[songId]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionNotFound
	}
	p, ok := s.participants[connId]
	if !ok {
		return nil, ErrSessionNotFound
	}

	s.lyrics = lyrics
	s.updatedAt = time.Now()

	return &EditEvent{
		SongId:    songId,
		AuthorId:  connId,
		UserId:    p.UserId,
		Lyrics:    lyrics,
		UpdatedAt: s.updatedAt,
	}, nil
}

// Roster returns the connection ids currently attached to a session.
func (r *Registry) Roster(songId uuid.UUID) []uuid.UUID {
	r.mu.RLock()
	s, ok := r.sessions[songId]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(s.participants))
	for id := range s.participants {
		ids = append(ids, id)
	}
	return ids
}

// SessionCount reports the number of live sessions.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) snapshotLocked(s *session) *SessionSnapshot {
	participants := make([]dto.ParticipantInfo, 0, len(s.participants))
	for connId, p := range s.participants {
		participants = append(participants, dto.ParticipantInfo{
			ConnectionId: connId,
			UserId:       p.UserId,
			DisplayName:  p.DisplayName,
		})
	}
	return &SessionSnapshot{
		SongId:       s.songId,
		Lyrics:       s.lyrics,
		Participants: participants,
		UpdatedAt:    s.updatedAt,
	}
}

// seed loads the persisted lyric state into a fresh session. The session
// lock is held across the load so concurrent joiners wait for one seed
// instead of racing the loader.
func (r *Registry) seed(ctx context.Context, s *session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSessionClosed
	}
	if s.seeded {
		return nil
	}

	lyrics, err := r.loader.LoadResourceState(ctx, s.songId)
	if err != nil {
		return err
	}
	s.lyrics = lyrics
	s.updatedAt = time.Now()
	s.seeded = true
	return nil
}

// dropIfEmpty removes a just-created session whose seeding failed before any
// participant attached.
func (r *Registry) dropIfEmpty(songId uuid.UUID, s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.participants) == 0 && r.sessions[songId] == s {
		s.closed = true
		delete(r.sessions, songId)
	}
}
