package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/kds/internal/domain"
)

// FormatVersion is written into every trailer.
const FormatVersion = 1

const (
	trailerPrefix = "#kds-snapshot"
	hashDomain    = "kds/snapshot/v1"
)

// ErrIntegrity is returned when a slot's trailer does not match its body.
var ErrIntegrity = errors.New("snapshot integrity check failed")

// Document is the on-disk form of a snapshot: the full state plus the save
// sequence number.
type Document struct {
	Seq     uint64 `json:"seq"`
	SavedAt int64  `json:"savedAt"`
	domain.State
}

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Encode renders doc as a JSON line followed by the integrity trailer.
func Encode(doc Document) ([]byte, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	var buf bytes.Buffer
	buf.Grow(len(body) + 128)
	buf.Write(body)
	fmt.Fprintf(&buf, "\n%s v%d sha256=%s len=%d\n", trailerPrefix, FormatVersion, hashWithDomain(hashDomain, body), len(body))
	return buf.Bytes(), nil
}

// Decode verifies and parses a slot file. Files written before the trailer
// existed are accepted when their JSON parses. Fields missing from the
// document take their defaults.
func Decode(data []byte) (Document, error) {
	body, err := verify(data)
	if err != nil {
		return Document{}, err
	}

	doc := Document{State: *domain.NewState()}
	if err := json.Unmarshal(body, &doc); err != nil {
		return Document{}, fmt.Errorf("decode snapshot: %w", err)
	}
	normalize(&doc.State)
	return doc, nil
}

// Body strips the trailer from a verified slot file and returns the JSON.
func Body(data []byte) ([]byte, error) {
	return verify(data)
}

func verify(data []byte) ([]byte, error) {
	data = bytes.TrimRight(data, "\r\n")
	idx := bytes.LastIndex(data, []byte("\n"+trailerPrefix+" "))
	if idx < 0 {
		return bytes.TrimSpace(data), nil
	}
	body := data[:idx]
	trailer := string(data[idx+1:])

	var (
		version, sum string
		length       = -1
	)
	for _, field := range strings.Fields(strings.TrimPrefix(trailer, trailerPrefix)) {
		key, value, _ := strings.Cut(field, "=")
		switch {
		case strings.HasPrefix(field, "v") && value == "":
			version = field
		case key == "sha256":
			sum = value
		case key == "len":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("%w: bad length %q", ErrIntegrity, value)
			}
			length = n
		}
	}

	if version != fmt.Sprintf("v%d", FormatVersion) {
		return nil, fmt.Errorf("%w: unsupported trailer version %q", ErrIntegrity, version)
	}
	if length != len(body) {
		return nil, fmt.Errorf("%w: length %d, trailer says %d", ErrIntegrity, len(body), length)
	}
	if got := hashWithDomain(hashDomain, body); got != sum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrIntegrity)
	}
	return body, nil
}

// normalize repairs values a hand-edited or older document may carry.
// Only missing or out-of-range fields are replaced.
func normalize(st *domain.State) {
	def := domain.DefaultSettings()
	n := &st.Settings.Numbering
	if n.Min < 1 {
		n.Min = def.Numbering.Min
	}
	if n.Max < 1 || n.Max > def.Numbering.Max {
		n.Max = def.Numbering.Max
	}
	if n.Min > n.Max {
		*n = def.Numbering
	}
	if st.Settings.Chinchiro.Rounding == "" {
		st.Settings.Chinchiro.Rounding = def.Chinchiro.Rounding
	}
	switch info := &st.Settings.Store; {
	case *info == (domain.StoreInfo{}):
		*info = def.Store
	case info.Name == "":
		info.Name = def.Store.Name
	}
	if st.Session.NextOrderSeq <= 0 {
		st.Session.NextOrderSeq = 1
	}
}
