package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/go-msu-finder/models"
)

// LineWriter writes one link URL per line.
type LineWriter struct {
	file    *os.File
	writer  *bufio.Writer
	written int
	mu      sync.Mutex
}

// NewLineWriter writes lines to w. Closing the writer only flushes w.
func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{writer: bufio.NewWriter(w)}
}

// NewLineFileWriter creates filename and writes lines to it.
func NewLineFileWriter(filename string) (*LineWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create text file: %w", err)
	}
	return &LineWriter{file: f, writer: bufio.NewWriter(f)}, nil
}

// Write appends links, one per line.
func (lw *LineWriter) Write(links []models.DownloadLink) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	for _, link := range links {
		if _, err := fmt.Fprintln(lw.writer, link.URL); err != nil {
			return fmt.Errorf("write line: %w", err)
		}
		lw.written++
	}
	if err := lw.writer.Flush(); err != nil {
		return fmt.Errorf("flush lines: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the file, if any.
func (lw *LineWriter) Close() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if err := lw.writer.Flush(); err != nil {
		return fmt.Errorf("flush lines: %w", err)
	}
	if lw.file == nil {
		return nil
	}
	return lw.file.Close()
}

// Validate ensures at least one line was written.
func (lw *LineWriter) Validate() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if lw.written == 0 {
		return fmt.Errorf("no links written")
	}
	return nil
}

// CSVWriter writes records to CSV.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	header := []string{"bulletin", "url", "file_name"}
	if err := writer.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

// Write appends links to the CSV output.
func (cw *CSVWriter) Write(links []models.DownloadLink) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, link := range links {
		record := []string{
			link.Bulletin.String(),
			link.URL,
			link.FileName(),
		}
		if err := cw.writer.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file has content besides the header.
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

type jsonRecord struct {
	models.DownloadLink
	FileName string `json:"file_name"`
}

// Write appends links in JSONL format.
func (jw *JSONWriter) Write(links []models.DownloadLink) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, link := range links {
		if err := jw.encoder.Encode(jsonRecord{DownloadLink: link, FileName: link.FileName()}); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	info, err := jw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
