package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// AuditLogEntry records that a tool executed, without retaining the
// request/response payloads themselves — only their digests.
type AuditLogEntry struct {
	timestamp      time.Time
	tool           string
	requestDigest  string
	responseDigest string
}

// NewAuditLogEntry validates and constructs an AuditLogEntry.
// requestDigest and responseDigest must be hex-encoded SHA-256 sums (64 hex
// characters, upper or lower case).
func NewAuditLogEntry(timestamp time.Time, tool, requestDigest, responseDigest string) (AuditLogEntry, error) {
	if tool == "" {
		return AuditLogEntry{}, Invalid("audit log entry: tool must not be empty")
	}
	if timestamp.IsZero() {
		return AuditLogEntry{}, Invalid("audit log entry %q: timestamp must be a non-zero instant", tool)
	}
	if !isHexDigest(requestDigest) {
		return AuditLogEntry{}, Invalid("audit log entry %q: requestDigest must be a hex SHA-256 digest", tool)
	}
	if !isHexDigest(responseDigest) {
		return AuditLogEntry{}, Invalid("audit log entry %q: responseDigest must be a hex SHA-256 digest", tool)
	}
	return AuditLogEntry{
		timestamp:      timestamp.UTC(),
		tool:           tool,
		requestDigest:  requestDigest,
		responseDigest: responseDigest,
	}, nil
}

func isHexDigest(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// Digest computes the lowercase hex SHA-256 digest of payload, for building
// AuditLogEntry values.
func Digest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func (a AuditLogEntry) Timestamp() time.Time      { return a.timestamp }
func (a AuditLogEntry) Tool() string              { return a.tool }
func (a AuditLogEntry) RequestDigest() string     { return a.requestDigest }
func (a AuditLogEntry) ResponseDigest() string    { return a.responseDigest }

type auditLogEntryJSON struct {
	Timestamp      time.Time `json:"timestamp"`
	Tool           string    `json:"tool"`
	RequestDigest  string    `json:"requestDigest"`
	ResponseDigest string    `json:"responseDigest"`
}

func (a AuditLogEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(auditLogEntryJSON{
		Timestamp:      a.timestamp,
		Tool:           a.tool,
		RequestDigest:  a.requestDigest,
		ResponseDigest: a.responseDigest,
	})
}

func (a *AuditLogEntry) UnmarshalJSON(data []byte) error {
	var raw auditLogEntryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	built, err := NewAuditLogEntry(raw.Timestamp, raw.Tool, raw.RequestDigest, raw.ResponseDigest)
	if err != nil {
		return err
	}
	*a = built
	return nil
}
