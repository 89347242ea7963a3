package fileanalysis

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/richardlehane/mscfb"
	"github.com/richardlehane/msoleps"
	"github.com/xuri/excelize/v2"

	"github.com/duskwatch/duskwatch/internal/model"
)

// summaryStreamNames lists the OLE/CFB property-set streams worth reading;
// legacy Office documents (.doc/.xls/.ppt) store their author/title/company
// fields here.
var summaryStreamNames = map[string]bool{
	"\x05SummaryInformation":        true,
	"\x05DocumentSummaryInformation": true,
}

// MetadataExtractor pulls embedded document metadata out of legacy
// OLE/CFB compound files (via mscfb+msoleps) and modern XLSX packages (via
// excelize), giving up cleanly on any other format.
type MetadataExtractor struct{}

// NewMetadataExtractor builds a MetadataExtractor.
func NewMetadataExtractor() *MetadataExtractor {
	return &MetadataExtractor{}
}

// Available always returns true: both backing libraries are pure Go with
// no external process dependency.
func (m *MetadataExtractor) Available() bool { return true }

// Extract dispatches on file signature: OLE/CFB compound files (old
// .doc/.xls/.ppt) go through mscfb+msoleps, ZIP-based XLSX packages go
// through excelize, and anything else reports Success false with Error
// "not_available".
func (m *MetadataExtractor) Extract(_ context.Context, fileName string, content []byte) model.MetadataResult {
	switch {
	case isOLECompoundFile(content):
		return extractOLEMetadata(content)
	case isZIPArchive(content) && strings.HasSuffix(strings.ToLower(fileName), ".xlsx"):
		return extractXLSXMetadata(content)
	default:
		return model.MetadataResult{Success: false, Error: "not_available"}
	}
}

func isOLECompoundFile(content []byte) bool {
	sig := []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	return len(content) >= len(sig) && bytes.Equal(content[:len(sig)], sig)
}

func isZIPArchive(content []byte) bool {
	return len(content) >= 4 && content[0] == 'P' && content[1] == 'K' && content[2] == 0x03 && content[3] == 0x04
}

func extractOLEMetadata(content []byte) model.MetadataResult {
	reader, err := mscfb.New(bytes.NewReader(content))
	if err != nil {
		return model.MetadataResult{Success: false, Error: fmt.Sprintf("open compound file: %v", err)}
	}

	fields := make(map[string]string)
	for entry, err := reader.Next(); err == nil; entry, err = reader.Next() {
		if !summaryStreamNames[entry.Name] {
			continue
		}
		buf := make([]byte, entry.Size)
		if _, readErr := io.ReadFull(reader, buf); readErr != nil && readErr != io.ErrUnexpectedEOF {
			continue
		}
		props, propErr := msoleps.NewFrom(bytes.NewReader(buf))
		if propErr != nil {
			continue
		}
		for _, prop := range props.Property {
			if prop == nil || prop.Name == "" {
				continue
			}
			val := strings.TrimSpace(prop.String())
			if val == "" {
				continue
			}
			fields[prop.Name] = val
		}
	}

	if len(fields) == 0 {
		return model.MetadataResult{Success: false, Error: "no property streams found"}
	}
	return model.MetadataResult{Success: true, Fields: fields}
}

func extractXLSXMetadata(content []byte) model.MetadataResult {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return model.MetadataResult{Success: false, Error: fmt.Sprintf("open xlsx: %v", err)}
	}
	defer f.Close()

	props, err := f.GetDocProps()
	if err != nil {
		return model.MetadataResult{Success: false, Error: fmt.Sprintf("read doc properties: %v", err)}
	}

	fields := make(map[string]string)
	addIfSet := func(key, val string) {
		if strings.TrimSpace(val) != "" {
			fields[key] = val
		}
	}
	addIfSet("creator", props.Creator)
	addIfSet("title", props.Title)
	addIfSet("subject", props.Subject)
	addIfSet("description", props.Description)
	addIfSet("keywords", props.Keywords)
	addIfSet("last_modified_by", props.LastModifiedBy)
	addIfSet("created", props.Created)
	addIfSet("modified", props.Modified)
	addIfSet("category", props.Category)
	addIfSet("revision", props.Revision)

	sheets := f.GetSheetList()
	if len(sheets) > 0 {
		fields["sheet_count"] = fmt.Sprintf("%d", len(sheets))
	}

	if len(fields) == 0 {
		return model.MetadataResult{Success: false, Error: "no document properties set"}
	}
	return model.MetadataResult{Success: true, Fields: fields}
}
