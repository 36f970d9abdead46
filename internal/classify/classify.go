package classify

import (
	"path/filepath"
	"regexp"
	"strings"
)

// FileType is the logical type recorded for a registered file.
type FileType string

const (
	TypeCAD   FileType = "cad"  // prt/asm/drw sources
	TypeBOM   FileType = "bom"  // assembly hierarchy export (.neu)
	TypePDF   FileType = "pdf"
	TypeDXF   FileType = "dxf"
	TypeSTEP  FileType = "step"
	TypeOther FileType = "other"
)

// Kind partitions every filename into exactly one handling path.
type Kind int

const (
	// KindAccepted means the file is ingested.
	KindAccepted Kind = iota
	// KindSkip means the file is ignored silently.
	KindSkip
	// KindCleanup means the file is ignored and the caller deletes it.
	KindCleanup
)

// Destination subfolders relative to the data root. CAD sources live in the
// root itself.
const (
	DestRoot    = ""
	DestNeutral = "neu"
	DestPDF     = "pdf"
	DestDXF     = "dxf"
	DestSTEP    = "step"
	DestArchive = "archive"
)

// Result is the classification of a single filename.
type Result struct {
	Kind       Kind
	ItemNumber string
	Extension  string
	FileType   FileType
	DestFolder string
}

// tempMarker prefixes scratch files written by CAD tools mid-save.
const tempMarker = "~"

var (
	// itemPrefixRe matches the canonical item number prefix: three letters
	// followed by four to six digits.
	itemPrefixRe = regexp.MustCompile(`^(?i)([a-z]{3}[0-9]{4,6})`)

	// asmExportRe matches an assembly hierarchy export filename.
	asmExportRe = regexp.MustCompile(`^(?i)([a-z]{3}[0-9]{4,6})_asm\.neu$`)
)

// Classify maps a bare filename onto exactly one handling path. It is pure;
// the caller performs all filesystem and database actions.
func Classify(name string) Result {
	if strings.HasPrefix(name, tempMarker) || strings.HasPrefix(name, ".") {
		return Result{Kind: KindSkip}
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	switch ext {
	case "", "tmp", "bak":
		return Result{Kind: KindSkip}
	}

	if ext == "neu" {
		m := asmExportRe.FindStringSubmatch(name)
		if m == nil {
			// Single-part neutral export: housekeeping, the caller deletes it.
			return Result{Kind: KindCleanup}
		}
		return Result{
			Kind:       KindAccepted,
			ItemNumber: strings.ToLower(m[1]),
			Extension:  ext,
			FileType:   TypeBOM,
			DestFolder: DestNeutral,
		}
	}

	var (
		fileType FileType
		dest     string
	)
	switch ext {
	case "prt", "asm", "drw":
		fileType, dest = TypeCAD, DestRoot
	case "pdf":
		fileType, dest = TypePDF, DestPDF
	case "dxf":
		fileType, dest = TypeDXF, DestDXF
	case "step", "stp":
		fileType, dest = TypeSTEP, DestSTEP
	default:
		fileType, dest = TypeOther, DestArchive
	}

	return Result{
		Kind:       KindAccepted,
		ItemNumber: ItemNumber(name),
		Extension:  ext,
		FileType:   fileType,
		DestFolder: dest,
	}
}

// ItemNumber derives the canonical item number from a filename. If the name
// carries the canonical prefix, descriptive suffixes such as "_dxf" are
// dropped with it; otherwise the whole base name is the item number. The
// result is always lowercase.
func ItemNumber(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if m := itemPrefixRe.FindStringSubmatch(base); m != nil {
		return strings.ToLower(m[1])
	}
	return strings.ToLower(base)
}
