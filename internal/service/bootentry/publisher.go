package bootentry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shani8dev/shani-deploy/internal/domain/boot"
	"github.com/shani8dev/shani-deploy/internal/logger"
)

const (
	// entriesDirname is the ESP-relative loader entries directory.
	entriesDirname = "loader/entries"
	// loaderConfName is the ESP-relative loader configuration file.
	loaderConfName = "loader/loader.conf"

	// entryPrefix names the per-slot entry files: shani-a.conf, shani-b.conf.
	entryPrefix = "shani-"
	// entrySuffix is the loader entry file extension.
	entrySuffix = ".conf"

	// rollbackRecordName stores the pre-promotion default under the workdir.
	rollbackRecordName = "rollback.yaml"

	// loaderFilePermissions is the permission for loader files written by us.
	loaderFilePermissions = 0o644
)

var (
	errEntryNotPublished = errors.New("slot has no published entry")
	errNoDefault         = errors.New("loader configuration has no default entry")
)

// SignatureVerifier guards publication: only artifacts that verify against
// the machine owner certificate may be referenced by an entry.
type SignatureVerifier interface {
	VerifyArtifact(ctx context.Context, path string) error
}

// Publisher writes loader entries and flips the default pointer.
type Publisher struct {
	espPath  string
	workDir  string
	osTitle  string
	verifier SignatureVerifier
}

// NewPublisher returns a Publisher for the given ESP.
func NewPublisher(espPath, workDir, osTitle string, verifier SignatureVerifier) *Publisher {
	return &Publisher{
		espPath:  espPath,
		workDir:  workDir,
		osTitle:  osTitle,
		verifier: verifier,
	}
}

// EntryName returns the loader entry file name of a slot.
func EntryName(slot boot.Slot) string {
	return entryPrefix + slot.String() + entrySuffix
}

// slotOfEntry parses a loader entry file name back into a slot.
func slotOfEntry(name string) (boot.Slot, bool) {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(name, entryPrefix), entrySuffix)

	slot, err := boot.ParseSlot(trimmed)
	if err != nil {
		return "", false
	}

	return slot, true
}

// Publish writes or overwrites the slot's loader entry for the given image.
// Publication is refused when the image's kernel does not verify against
// the machine owner certificate.
func (p *Publisher) Publish(ctx context.Context, image boot.Image) error {
	if err := p.verifier.VerifyArtifact(ctx, image.Kernel); err != nil {
		return err
	}

	entry := boot.Entry{
		Title:   fmt.Sprintf("%s (%s)", p.osTitle, strings.ToUpper(image.Slot.String())),
		Linux:   p.espRelative(image.Kernel),
		Initrd:  p.espRelative(image.Initrd),
		Options: image.Cmdline.String(),
		Slot:    image.Slot,
	}

	entriesDir := filepath.Join(p.espPath, entriesDirname)
	if err := os.MkdirAll(entriesDir, 0o755); err != nil {
		return boot.E("publish", boot.CategoryLoader, fmt.Errorf("create entries dir: %w", err))
	}

	path := filepath.Join(entriesDir, EntryName(image.Slot))
	if err := writeFileAtomic(path, []byte(renderEntry(entry))); err != nil {
		return boot.E("publish", boot.CategoryLoader, fmt.Errorf("write entry: %w", err))
	}

	logger.InfoKV(ctx, "Loader entry published", "slot", image.Slot.String(), "path", path)

	return nil
}

// SetDefault promotes the slot by rewriting only the default line of the
// loader configuration. The prior default is recorded for rollback.
func (p *Publisher) SetDefault(ctx context.Context, slot boot.Slot) error {
	entryName := EntryName(slot)

	if _, err := os.Stat(filepath.Join(p.espPath, entriesDirname, entryName)); err != nil {
		return boot.E("set-default", boot.CategoryLoader,
			fmt.Errorf("%w: %s", errEntryNotPublished, slot))
	}

	current, err := p.DefaultEntry(ctx)
	if err != nil && !errors.Is(err, errNoDefault) {
		return err
	}

	if current != "" && current != entryName {
		if err := p.saveRollbackRecord(current); err != nil {
			return boot.E("set-default", boot.CategoryLoader, err)
		}
	}

	if err := p.writeDefault(entryName); err != nil {
		return boot.E("set-default", boot.CategoryLoader, err)
	}

	logger.InfoKV(ctx, "Default boot entry switched",
		"slot", slot.String(), "previous", current)

	return nil
}

// Rollback restores the default pointer recorded before the last promotion.
// No filesystem content is touched; only the loader configuration changes.
// Without a record the complement of the current default is restored.
func (p *Publisher) Rollback(ctx context.Context) error {
	previous, err := p.loadRollbackRecord()
	if err != nil {
		return boot.E("rollback", boot.CategoryLoader, err)
	}

	if previous == "" {
		current, err := p.DefaultEntry(ctx)
		if err != nil {
			return err
		}

		slot, ok := slotOfEntry(current)
		if !ok {
			return boot.E("rollback", boot.CategoryLoader,
				fmt.Errorf("default entry %q does not name a slot", current))
		}

		previous = EntryName(slot.Complement())
	}

	if err := p.writeDefault(previous); err != nil {
		return boot.E("rollback", boot.CategoryLoader, err)
	}

	p.clearRollbackRecord()

	logger.InfoKV(ctx, "Default boot entry rolled back", "entry", previous)

	return nil
}

// DefaultEntry returns the entry file name the loader currently defaults to.
func (p *Publisher) DefaultEntry(_ context.Context) (string, error) {
	contents, err := os.ReadFile(filepath.Clean(filepath.Join(p.espPath, loaderConfName)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", errNoDefault
		}

		return "", boot.E("set-default", boot.CategoryLoader, fmt.Errorf("read loader config: %w", err))
	}

	for _, line := range strings.Split(string(contents), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[0] == "default" {
			return fields[1], nil
		}
	}

	return "", errNoDefault
}

// DefaultSlot returns the slot the loader currently defaults to.
func (p *Publisher) DefaultSlot(ctx context.Context) (boot.Slot, error) {
	entry, err := p.DefaultEntry(ctx)
	if err != nil {
		return "", err
	}

	slot, ok := slotOfEntry(entry)
	if !ok {
		return "", fmt.Errorf("default entry %q does not name a slot", entry)
	}

	return slot, nil
}

// writeDefault rewrites the loader configuration, replacing only the
// default line and preserving everything else.
func (p *Publisher) writeDefault(entryName string) error {
	path := filepath.Join(p.espPath, loaderConfName)

	var kept []string

	contents, err := os.ReadFile(filepath.Clean(path))
	if err == nil {
		for _, line := range strings.Split(strings.TrimRight(string(contents), "\n"), "\n") {
			fields := strings.Fields(line)
			if len(fields) > 0 && fields[0] == "default" {
				continue
			}

			kept = append(kept, line)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read loader config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create loader dir: %w", err)
	}

	lines := append([]string{"default " + entryName}, kept...)

	return writeFileAtomic(path, []byte(strings.Join(lines, "\n")+"\n"))
}

// rollbackRecord persists the pre-promotion default between runs.
type rollbackRecord struct {
	// PreviousDefault is the entry file name that was default before promotion.
	PreviousDefault string `yaml:"previous_default"`
}

// saveRollbackRecord stores the prior default under the working directory.
func (p *Publisher) saveRollbackRecord(entryName string) error {
	if err := os.MkdirAll(p.workDir, 0o755); err != nil {
		return fmt.Errorf("create working directory: %w", err)
	}

	data, err := yaml.Marshal(&rollbackRecord{PreviousDefault: entryName})
	if err != nil {
		return fmt.Errorf("marshal rollback record: %w", err)
	}

	return os.WriteFile(filepath.Join(p.workDir, rollbackRecordName), data, loaderFilePermissions)
}

// loadRollbackRecord returns the recorded prior default, or empty when no
// record exists.
func (p *Publisher) loadRollbackRecord() (string, error) {
	contents, err := os.ReadFile(filepath.Clean(filepath.Join(p.workDir, rollbackRecordName)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}

		return "", fmt.Errorf("read rollback record: %w", err)
	}

	var record rollbackRecord
	if err := yaml.Unmarshal(contents, &record); err != nil {
		return "", fmt.Errorf("decode rollback record: %w", err)
	}

	return record.PreviousDefault, nil
}

// clearRollbackRecord drops the record once it has been consumed.
func (p *Publisher) clearRollbackRecord() {
	_ = os.Remove(filepath.Join(p.workDir, rollbackRecordName))
}

// espRelative renders an absolute staged path as a loader path relative to
// the ESP root.
func (p *Publisher) espRelative(path string) string {
	rel, err := filepath.Rel(p.espPath, path)
	if err != nil {
		return path
	}

	return "/" + filepath.ToSlash(rel)
}

// renderEntry produces the loader entry file body.
func renderEntry(entry boot.Entry) string {
	var builder strings.Builder

	builder.WriteString("title " + entry.Title + "\n")
	builder.WriteString("linux " + entry.Linux + "\n")
	builder.WriteString("initrd " + entry.Initrd + "\n")
	builder.WriteString("options " + entry.Options + "\n")

	return builder.String()
}

// writeFileAtomic writes data under path via temp file and rename.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, loaderFilePermissions); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}
