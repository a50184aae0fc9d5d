package cos

import (
	"crypto/rand"
	"strconv"

	"github.com/OneOfOne/xxhash"
	"github.com/teris-io/shortid"
)

// Alphabet for generating run IDs: 64 unique symbols, the same shape as
// shortid.DEFAULT_ABC. It is one fixed constant for every workspace; the
// seed given to InitRunID shuffles it.
const runIDABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

const LenRunID = 9

var sid *shortid.Shortid

// InitRunID must be called once, at process start, before GenRunID; seed
// shuffles the run-ID alphabet (cmd/obn-smn passes a hash of the
// workspace name and listen address). GenRunID panics until it is called.
func InitRunID(seed uint64) {
	sid = shortid.MustNew(4 /*worker*/, runIDABC, seed)
}

// GenRunID returns a short, URL-safe identifier for a single simulation
// run, used as a correlation tag in logs and metrics.
func GenRunID() string { return sid.MustGenerate() }

// HashNodeName derives a stable, compact numeric id from a node's logical
// (workspace, name) pair. cmd/obn-smn and cmd/obn-node both call this to
// compute the same wire.Message.ID independently, so a node process never
// has to be told its numeric id out of band and kept in sync with the SMN
// process's own assignment.
func HashNodeName(workspace, name string) uint64 {
	h := xxhash.New64()
	_, _ = h.WriteString(workspace)
	_, _ = h.WriteString("/")
	_, _ = h.WriteString(name)
	return h.Sum64()
}

// GenNodeAuthToken returns a random per-connection nonce a node includes
// in its first message to the SMN so that duplicate/stale connections
// from a crashed-and-restarted node can be told apart; it is not a
// security credential (no authentication/authorization concern is in
// scope for the core, see DESIGN.md).
func GenNodeAuthToken() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	v := uint64(0)
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return strconv.FormatUint(v, 36)
}
