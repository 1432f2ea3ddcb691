package ledger

import (
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"
	"sort"

	"github.com/zeebo/blake3"
)

// Fingerprint identifies the content of one input.
// Size and ModTime give a cheap first comparison; Digest is authoritative.
type Fingerprint struct {
	Size    int64  `cbor:"1,keyasint,omitempty"`
	ModTime int64  `cbor:"2,keyasint,omitempty"`
	Digest  string `cbor:"3,keyasint"`
}

// sameStat reports whether size and modification time match.
func (f Fingerprint) sameStat(o Fingerprint) bool {
	return f.Size == o.Size && f.ModTime == o.ModTime
}

// fingerprint computes the fingerprint of in. When prev has the same size and
// mtime its digest is reused without reading the file.
func fingerprint(in Input, prev *Fingerprint) (Fingerprint, error) {
	if in.Path == "" {
		return Fingerprint{Digest: digestString(in.ID)}, nil
	}
	info, err := os.Stat(in.Path)
	if err != nil {
		return Fingerprint{}, err
	}
	fp := Fingerprint{Size: info.Size(), ModTime: info.ModTime().UnixNano()}
	if prev != nil && prev.Digest != "" && fp.sameStat(*prev) {
		fp.Digest = prev.Digest
		return fp, nil
	}
	if info.IsDir() {
		// Directory inputs (workspace builds) are always treated as changed.
		fp.Digest = ""
		return fp, nil
	}
	fp.Digest, err = DigestFile(in.Path)
	return fp, err
}

// DigestFile returns the hex BLAKE3 digest of the file at path.
func DigestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func digestString(s string) string {
	sum := blake3.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// batchDigest hashes salt and the (id, digest) pairs in id order. Every field
// is length-prefixed so adjacent values cannot collide.
func batchDigest(salt string, fps map[string]Fingerprint) string {
	ids := make([]string, 0, len(fps))
	for id := range fps {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	h := blake3.New()
	writeField(h, salt)
	for _, id := range ids {
		writeField(h, id)
		writeField(h, fps[id].Digest)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(w io.Writer, s string) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(s)))
	_, _ = w.Write(n[:])
	_, _ = io.WriteString(w, s)
}
