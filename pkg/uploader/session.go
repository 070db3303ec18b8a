package uploader

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/waifuvault/WaifuFiles/pkg/models"
)

// DeriveUploadID builds a session id from the file's identity and options
// so the same file re-enqueued with the same options derives the same
// prefix, then appends a time suffix so two attempts never collide.
func DeriveUploadID(name string, size int64, modTime time.Time, opts models.UploadOptions) string {
	rawOpts, _ := json.Marshal(opts)
	base := fmt.Sprintf("%s-%d-%d-%s", name, size, modTime.UnixMilli(), rawOpts)
	encoded := base64.StdEncoding.EncodeToString([]byte(base))
	var b strings.Builder
	for _, r := range encoded {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() == 20 {
			break
		}
	}
	millis := strconv.FormatInt(time.Now().UnixMilli(), 10)
	return b.String() + millis[len(millis)-6:]
}

// GenerateUploadID is the fallback when no file identity is available: a
// timestamp with a random suffix.
func GenerateUploadID() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10) +
		strings.ReplaceAll(uuid.New().String(), "-", "")[:9]
}
