package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Content unit kinds
const (
	ContentKindDocument    = "document"
	ContentKindTranscript  = "transcript"
	ContentKindSlides      = "slides"
	ContentKindSpreadsheet = "spreadsheet"
	ContentKindWebPage     = "webpage"
	ContentKindImage       = "image"
)

// ContentUnit is one source text (uploaded document, meeting transcript,
// slide deck, scraped page, OCR'd image) subject to knowledge synthesis.
// Body holds the extracted plain text; when content encryption is enabled
// the body is stored in EncryptedBody instead and Body stays empty at rest.
type ContentUnit struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProjectID     string             `bson:"projectId" json:"project_id"`
	Name          string             `bson:"name" json:"name"`
	Kind          string             `bson:"kind" json:"kind"`
	Body          string             `bson:"body,omitempty" json:"-"`
	EncryptedBody string             `bson:"encryptedBody,omitempty" json:"-"`
	ContentHash   string             `bson:"contentHash" json:"content_hash"`
	WordCount     int                `bson:"wordCount" json:"word_count"`
	SourceURL     string             `bson:"sourceUrl,omitempty" json:"source_url,omitempty"`
	SummaryTitle  string             `bson:"summaryTitle,omitempty" json:"summary_title,omitempty"`
	Summary       string             `bson:"summary,omitempty" json:"summary,omitempty"`
	CreatedAt     time.Time          `bson:"createdAt" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updated_at"`
}

// SynthesisRecord marks "this content unit, at this hash, has been
// synthesized". It is the sole persisted state that advances change
// detection between runs.
type SynthesisRecord struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProjectID           string             `bson:"projectId" json:"project_id"`
	ContentUnitID       string             `bson:"contentUnitId" json:"content_unit_id"`
	LastSynthesizedHash string             `bson:"lastSynthesizedHash" json:"last_synthesized_hash"`
	SynthesizedAt       time.Time          `bson:"synthesizedAt" json:"synthesized_at"`
}

// HashContent returns the hex-encoded SHA-256 of a content body. Computed
// once at ingest; change detection compares it against the unit's
// SynthesisRecord.
func HashContent(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

// CountWords returns a whitespace-delimited word count, used for ingest
// stats and prompt budgeting.
func CountWords(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		switch r {
		case ' ', '\t', '\n', '\r':
			inWord = false
		default:
			if !inWord {
				count++
				inWord = true
			}
		}
	}
	return count
}
