package collab

// Connection is one live client session.
type Connection struct {
	ID          string
	UserID      string
	DisplayName string
	// Verified is set when the identity came from a validated token rather
	// than from an event payload. A verified user id can't be overwritten.
	Verified bool
	Channel  ChannelKey
}

// Registry owns every live Connection record of this instance.
type Registry struct {
	conns map[string]*Connection
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Connection)}
}

// Register creates an anonymous record with no channel. Registering an id
// twice keeps the existing record.
func (r *Registry) Register(id string) {
	if _, ok := r.conns[id]; ok {
		return
	}
	r.conns[id] = &Connection{ID: id}
}

// Identify attaches identity to a connection, last write wins.
// Blank values leave the current ones untouched.
func (r *Registry) Identify(id, userID, displayName string) bool {
	conn, ok := r.conns[id]
	if !ok {
		return false
	}
	if userID != "" && !conn.Verified {
		conn.UserID = userID
	}
	if displayName != "" {
		conn.DisplayName = displayName
	}
	return true
}

// Verify pins a token-derived identity on the connection.
func (r *Registry) Verify(id, userID, displayName string) bool {
	conn, ok := r.conns[id]
	if !ok {
		return false
	}
	conn.UserID = userID
	conn.DisplayName = displayName
	conn.Verified = true
	return true
}

// SetChannel records the channel the connection currently belongs to.
func (r *Registry) SetChannel(id string, key ChannelKey) {
	if conn, ok := r.conns[id]; ok {
		conn.Channel = key
	}
}

// Unregister drops the record and returns what it was, so the caller can
// run the channel and presence cleanup for it.
func (r *Registry) Unregister(id string) (Connection, bool) {
	conn, ok := r.conns[id]
	if !ok {
		return Connection{}, false
	}
	delete(r.conns, id)
	return *conn, true
}

func (r *Registry) Lookup(id string) (Connection, bool) {
	conn, ok := r.conns[id]
	if !ok {
		return Connection{}, false
	}
	return *conn, true
}

func (r *Registry) Len() int { return len(r.conns) }

// IDs lists every registered connection id.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}
