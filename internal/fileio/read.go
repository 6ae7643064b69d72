// Package fileio implements whitelist-aware, range-capable file reads: the
// mmap threshold, binary/size gates, and the small hot-file cache the edit
// engine and ReadFiles both rely on.
package fileio

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/edsrzf/mmap-go"

	"wcgw/internal/ops"
	"wcgw/internal/session"
)

// Config bundles the EngineConfig knobs this package reads.
type Config struct {
	MmapThreshold int64 // bytes; 0 uses DefaultMmapThreshold
	MaxFileSize   int64 // bytes; 0 uses DefaultMaxFileSize
	CacheCapacity int   // entries; 0 uses DefaultCacheCapacity
}

const (
	DefaultMmapThreshold = 256 * 1024
	DefaultMaxFileSize   = 10 * 1024 * 1024
	DefaultCacheCapacity = 64
)

func (c Config) mmapThreshold() int64 {
	if c.MmapThreshold <= 0 {
		return DefaultMmapThreshold
	}
	return c.MmapThreshold
}

func (c Config) maxFileSize() int64 {
	if c.MaxFileSize <= 0 {
		return DefaultMaxFileSize
	}
	return c.MaxFileSize
}

// rangeSpec parses the "path:start-end" / "path:start-" / "path" forms from
// §6's ReadFiles wire contract.
type rangeSpec struct {
	Path  string
	Start int // 1-indexed; 0 means "from the beginning"
	End   int // 1-indexed inclusive; 0 means "to the end"
}

var rangeSuffix = regexp.MustCompile(`^(.*):(\d+)?-(\d+)?$`)

// ParseRangeSpec splits a wire path argument into its path and optional
// line range.
func ParseRangeSpec(arg string) (rangeSpec, error) {
	if m := rangeSuffix.FindStringSubmatch(arg); m != nil {
		spec := rangeSpec{Path: m[1]}
		if m[2] != "" {
			n, err := strconv.Atoi(m[2])
			if err != nil {
				return rangeSpec{}, fmt.Errorf("invalid range start in %q", arg)
			}
			spec.Start = n
		} else {
			spec.Start = 1
		}
		if m[3] != "" {
			n, err := strconv.Atoi(m[3])
			if err != nil {
				return rangeSpec{}, fmt.Errorf("invalid range end in %q", arg)
			}
			spec.End = n
		}
		return spec, nil
	}
	return rangeSpec{Path: arg}, nil
}

// FileResult is one file's read result.
type FileResult struct {
	Path      string
	Content   string
	StartLine int
	EndLine   int
	TotalLines int
}

// Reader serves whitelist-aware file reads backed by a bounded hot-file
// cache and an mmap fast path for large files.
type Reader struct {
	cfg   Config
	cache *cache
}

// NewReader builds a Reader with the given config.
func NewReader(cfg Config) *Reader {
	capacity := cfg.CacheCapacity
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Reader{cfg: cfg, cache: newCache(capacity)}
}

// ReadFiles implements §4.4's contract for a batch of range specs against
// one session's whitelist, recording each successfully read range.
func (r *Reader) ReadFiles(state *session.State, specs []string) ([]FileResult, []*ops.Error) {
	var results []FileResult
	var errs []*ops.Error

	for _, raw := range specs {
		spec, err := ParseRangeSpec(raw)
		if err != nil {
			errs = append(errs, ops.New(ops.InvalidBlockFormat, ops.ComponentFileIO, "%v", err))
			continue
		}
		res, opErr := r.readOne(state, spec)
		if opErr != nil {
			errs = append(errs, opErr)
			continue
		}
		results = append(results, res)
	}
	return results, errs
}

func (r *Reader) readOne(state *session.State, spec rangeSpec) (FileResult, *ops.Error) {
	abs := absPath(spec.Path)
	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		return FileResult{}, ops.New(ops.PathNotFound, ops.ComponentFileIO, "no such file: %s", abs)
	}
	if err != nil {
		return FileResult{}, ops.New(ops.PathNotFound, ops.ComponentFileIO, "stat %s: %v", abs, err)
	}
	if info.IsDir() {
		return FileResult{}, ops.New(ops.PathNotFound, ops.ComponentFileIO, "%s is a directory", abs)
	}
	if info.Size() > r.cfg.maxFileSize() {
		return FileResult{}, ops.New(ops.FileTooLarge, ops.ComponentFileIO,
			"%s is %s, exceeds the %s limit", abs, humanize.Bytes(uint64(info.Size())), humanize.Bytes(uint64(r.cfg.maxFileSize())))
	}

	data, err := r.cache.getOrLoad(abs, info, r.cfg.mmapThreshold())
	if err != nil {
		return FileResult{}, ops.New(ops.PathNotFound, ops.ComponentFileIO, "read %s: %v", abs, err)
	}

	if looksBinary(data) {
		return FileResult{}, ops.New(ops.PathIsBinary, ops.ComponentFileIO, "%s appears to be a binary file", abs)
	}

	lines := strings.Split(string(data), "\n")
	total := len(lines)
	start, end := resolveRange(spec, total)

	if start < 1 || start > total {
		return FileResult{}, ops.New(ops.PathNotFound, ops.ComponentFileIO, "range start %d out of bounds for %s (%d lines)", start, abs, total)
	}

	selected := strings.Join(lines[start-1:end], "\n")
	hash := session.HashContent(data)

	whole := spec.Start == 0 && spec.End == 0
	state.Whitelist(abs, hash, info.ModTime(), info.Size(), session.ReadRange{Start: start, End: endMarker(spec, end, total)}, whole)

	return FileResult{Path: abs, Content: selected, StartLine: start, EndLine: end, TotalLines: total}, nil
}

func resolveRange(spec rangeSpec, total int) (start, end int) {
	start = spec.Start
	if start == 0 {
		start = 1
	}
	end = spec.End
	if end == 0 || end > total {
		end = total
	}
	return start, end
}

// endMarker preserves "open-ended" (End: 0) in the whitelist when the
// caller asked for everything to the end of the file, so a later append to
// the file doesn't require a re-read to stay covered.
func endMarker(spec rangeSpec, resolvedEnd, total int) int {
	if spec.End == 0 && resolvedEnd == total {
		return 0
	}
	return resolvedEnd
}

// looksBinary applies the common heuristic: a NUL byte in the first 8000
// bytes marks a file as binary, the same sniff length git itself uses.
func looksBinary(data []byte) bool {
	n := len(data)
	if n > 8000 {
		n = 8000
	}
	return bytes.IndexByte(data[:n], 0) >= 0
}

// loadFile reads path's contents, using mmap above threshold bytes for a
// zero-copy read of large files.
func loadFile(path string, size, threshold int64) ([]byte, error) {
	if size < threshold {
		return os.ReadFile(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		// mmap can fail on some filesystems (e.g. certain network mounts);
		// fall back to a buffered read rather than failing the operation.
		return os.ReadFile(path)
	}
	defer m.Unmap()

	out := make([]byte, len(m))
	copy(out, m)
	return out, nil
}

func absPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
