package models

import (
	"regexp"

	"github.com/waifuvault/WaifuFiles/internal/errvalues"
)

var expiresPattern = regexp.MustCompile(`^\d+[mhd]$`)

// UploadOptions carries the user-chosen options for one file. Optional
// fields are forwarded to the vault only when meaningfully set.
type UploadOptions struct {
	Filename        string `json:"filename"`
	Expires         string `json:"expires,omitempty"`
	Password        string `json:"password,omitempty"`
	HideFilename    bool   `json:"hideFilename,omitempty"`
	OneTimeDownload bool   `json:"oneTimeDownload,omitempty"`
	BucketToken     string `json:"bucketToken,omitempty"`
}

// Validate checks option fields before anything hits the network.
// An empty expiry means "use the vault default" and is valid.
func (o UploadOptions) Validate() error {
	if o.Expires != "" && !expiresPattern.MatchString(o.Expires) {
		return errvalues.ErrInvalidExpiry
	}
	return nil
}

// StoredFileOptions mirrors the protection flags the vault reports back.
type StoredFileOptions struct {
	HideFilename    bool `json:"hideFilename"`
	OneTimeDownload bool `json:"oneTimeDownload"`
	Protected       bool `json:"protected"`
}

// StoredFile is the vault's descriptor for a durably stored file.
// RetentionPeriod comes back as either a string or a number.
type StoredFile struct {
	Token           string            `json:"token,omitempty"`
	URL             string            `json:"url"`
	Bucket          string            `json:"bucket,omitempty"`
	Views           int               `json:"views,omitempty"`
	RetentionPeriod any               `json:"retentionPeriod"`
	Options         StoredFileOptions `json:"options"`
}

type Restriction struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

const (
	RestrictionMaxFileSize    = "MAX_FILE_SIZE"
	RestrictionBannedMimeType = "BANNED_MIME_TYPE"
)
