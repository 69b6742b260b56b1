package telemetry

import (
	json "github.com/goccy/go-json"
)

// BuildInfo carries deployment metadata resolved at build time, typically
// injected with -ldflags.
type BuildInfo struct {
	Version   string `json:"version,omitempty"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
}

// EnvironmentInfo carries environment labels supplied by the host.
type EnvironmentInfo struct {
	URL       string `json:"url,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Tenant    string `json:"tenant,omitempty"`
}

// Identity describes the authenticated principal at capture time.
type Identity struct {
	ID     string `json:"id,omitempty"`
	Handle string `json:"handle,omitempty"`
	Email  string `json:"email,omitempty"`
}

// IdentitySource resolves the current authenticated principal. Lookups are
// best effort: ok is false whenever no principal can be resolved.
type IdentitySource interface {
	CurrentIdentity() (identity Identity, ok bool)
}

// User is one entry in the host application's user directory.
type User struct {
	ID     string
	AuthID string
	Handle string
	Email  string
}

// DirectoryIdentity resolves the current principal by matching an external
// auth id against the host's user directory. Both accessors may be nil or
// may fail to produce a value; the lookup then reports no identity.
type DirectoryIdentity struct {
	// AuthID returns the external auth id of the signed-in principal,
	// empty when nobody is signed in.
	AuthID func() string
	// Users returns the known user directory.
	Users func() []User
}

// CurrentIdentity implements IdentitySource.
func (d DirectoryIdentity) CurrentIdentity() (Identity, bool) {
	if d.AuthID == nil || d.Users == nil {
		return Identity{}, false
	}

	authID := d.AuthID()
	if authID == "" {
		return Identity{}, false
	}

	for _, user := range d.Users() {
		if user.AuthID == authID {
			return Identity{ID: user.ID, Handle: user.Handle, Email: user.Email}, true
		}
	}

	return Identity{}, false
}

// StateSlice is a shallow summary of one top-level slice of host application
// state: a name, a row count, and a handful of flags. Never full object
// graphs.
type StateSlice struct {
	Name  string          `json:"name"`
	Count int             `json:"count"`
	Flags map[string]bool `json:"flags,omitempty"`
}

// SnapshotSource supplies the host-state summary attached to captures for
// debugging. Absence is tolerated; the snapshot is never required for
// correct operation.
type SnapshotSource interface {
	StateSummary() []StateSlice
}

// ErrorContext is the snapshot persisted and shipped with every record.
type ErrorContext struct {
	UserID     string          `json:"user_id,omitempty"`
	UserHandle string          `json:"user_handle,omitempty"`
	UserEmail  string          `json:"user_email,omitempty"`
	AppVersion string          `json:"app_version,omitempty"`
	Commit     string          `json:"commit,omitempty"`
	BuildTime  string          `json:"build_time,omitempty"`
	URL        string          `json:"url,omitempty"`
	UserAgent  string          `json:"user_agent,omitempty"`
	Tenant     string          `json:"tenant,omitempty"`
	State      json.RawMessage `json:"state,omitempty"`
	Extra      map[string]any  `json:"extra,omitempty"`
}

// truncatedSnapshot replaces a state snapshot whose serialized form exceeds
// the configured cap. Size records how large the snapshot would have been.
type truncatedSnapshot struct {
	Truncated bool `json:"truncated"`
	Size      int  `json:"size"`
}

// buildContext assembles the capture context. Every sub-step is guarded:
// a failing or panicking source yields a zero value for its field, never an
// aborted capture.
func (q *Queue) buildContext(extra map[string]any) *ErrorContext {
	ec := &ErrorContext{
		AppVersion: q.cfg.Build.Version,
		Commit:     q.cfg.Build.Commit,
		BuildTime:  q.cfg.Build.BuildTime,
		URL:        q.cfg.Environment.URL,
		UserAgent:  q.cfg.Environment.UserAgent,
		Tenant:     q.cfg.Environment.Tenant,
		Extra:      extra,
	}

	if identity, ok := safeIdentity(q.cfg.Identity); ok {
		ec.UserID = identity.ID
		ec.UserHandle = identity.Handle
		ec.UserEmail = identity.Email
	}

	ec.State = safeSnapshot(q.cfg.Snapshot, q.cfg.SnapshotLimit)

	return ec
}

func safeIdentity(source IdentitySource) (identity Identity, ok bool) {
	if source == nil {
		return Identity{}, false
	}
	defer func() {
		if recover() != nil {
			identity = Identity{}
			ok = false
		}
	}()

	return source.CurrentIdentity()
}

// safeSnapshot serializes the host-state summary, substituting a truncation
// marker when the encoded form exceeds limit bytes.
func safeSnapshot(source SnapshotSource, limit int) (out json.RawMessage) {
	if source == nil {
		return nil
	}
	defer func() {
		if recover() != nil {
			out = nil
		}
	}()

	slices := source.StateSummary()
	if len(slices) == 0 {
		return nil
	}

	data, err := json.Marshal(slices)
	if err != nil {
		return nil
	}
	if limit > 0 && len(data) > limit {
		marker, err := json.Marshal(truncatedSnapshot{Truncated: true, Size: len(data)})
		if err != nil {
			return nil
		}

		return marker
	}

	return data
}
