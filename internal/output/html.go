package output

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kingrea/helix/internal/archive"
	"github.com/kingrea/helix/internal/artifact"
	"github.com/kingrea/helix/internal/config"
	"github.com/kingrea/helix/internal/module"
	"github.com/kingrea/helix/internal/pipeline"
	"github.com/kingrea/helix/internal/record"
)

// HTMLID identifies the HTML report output plugin.
const HTMLID = "helix.outputs.html"

// HTML option names.
const (
	OptEnableHTML       = "enable-html"
	OptHTMLTitle        = "html-title"
	OptHTMLDescription  = "html-description"
	OptHTMLStartCompact = "html-start-compact"
	OptHTMLNCBIContext  = "html-ncbi-context"
)

//go:embed assets
var embeddedAssets embed.FS

var leadingSpace = regexp.MustCompile(`(?m)^[ \t]+`)

// HTML renders the top-level report and copies its static assets.
type HTML struct {
	module.Base
	assets fs.FS
}

// NewHTML builds the plugin over the embedded asset bundle.
func NewHTML() *HTML {
	sub, err := fs.Sub(embeddedAssets, "assets")
	if err != nil {
		panic(fmt.Sprintf("output: embedded assets: %v", err))
	}
	return newHTML(sub)
}

func newHTML(assets fs.FS) *HTML {
	h := &HTML{
		Base: module.NewBase(module.Info{
			ID:          HTMLID,
			Name:        "HTML output",
			Description: "Writes index.html with per-record summaries and static assets",
			Version:     "1",
		}),
		assets: assets,
	}
	h.SetOptions(
		config.Option{Name: OptEnableHTML, Type: config.TypeBool, Default: false, Help: "write the HTML report even with --minimal"},
		config.Option{Name: OptHTMLTitle, Type: config.TypeString, Default: "", Help: "custom title for the HTML output page (default is the archive name)"},
		config.Option{Name: OptHTMLDescription, Type: config.TypeString, Default: "", Help: "custom description to add to the output"},
		config.Option{Name: OptHTMLStartCompact, Type: config.TypeBool, Default: false, Help: "use compact view by default for the overview page"},
		config.Option{Name: OptHTMLNCBIContext, Type: config.TypeBool, Default: false, Help: "show NCBI genomic context links for genes"},
	)
	return h
}

// IsEnabled reports whether the report is written.
func (h *HTML) IsEnabled(cfg config.Config) bool {
	return cfg.Bool(OptEnableHTML) || !cfg.Minimal
}

// CheckReadiness ensures the bundle carries the configured taxon's stylesheet
// and the page template.
func (h *HTML) CheckReadiness(cfg config.Config) []error {
	var errs []error
	for _, name := range []string{"css/" + cfg.Taxon + ".css", "templates/index.html.tmpl"} {
		if _, err := fs.Stat(h.assets, name); err != nil {
			errs = append(errs, module.ReadinessError(HTMLID, fmt.Errorf("missing asset %s", name)))
		}
	}
	return errs
}

// CheckOptions rejects titles the page header cannot hold.
func (h *HTML) CheckOptions(cfg config.Config) []error {
	if strings.ContainsAny(cfg.String(OptHTMLTitle), "\r\n") {
		return []error{module.OptionError(HTMLID, fmt.Errorf("--%s must be a single line", OptHTMLTitle))}
	}
	return nil
}

// Write copies the asset directories and renders index.html.
func (h *HTML) Write(arc *archive.Archive, records []*record.Record, report pipeline.Report, cfg config.Config) error {
	store := artifact.NewStore(cfg.OutputDir)
	if err := h.copyTemplateDir(store, "css", cfg.Taxon+".css"); err != nil {
		return err
	}
	if err := h.copyTemplateDir(store, "js", ""); err != nil {
		return err
	}
	if err := h.copyTemplateDir(store, "images", ""); err != nil {
		return err
	}

	tmpl, err := template.ParseFS(h.assets, "templates/index.html.tmpl")
	if err != nil {
		return fmt.Errorf("output: parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, buildPage(arc, records, report, cfg)); err != nil {
		return fmt.Errorf("output: render index.html: %w", err)
	}
	content := stripLeadingWhitespace(buf.Bytes())
	if err := store.Write(artifact.Binary("index-html", "HTML report", "index.html"), content, artifact.Metadata{}); err != nil {
		return fmt.Errorf("output: write index.html: %w", err)
	}
	return nil
}

// copyTemplateDir replaces <out>/<dir> with the bundled directory. When
// pattern is set only matching files are copied.
func (h *HTML) copyTemplateDir(store *artifact.Store, dir, pattern string) error {
	target, err := store.Reset(artifact.Directory(dir, dir, dir))
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}
	return fs.WalkDir(h.assets, dir, func(name string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(name, dir), "/")
		if rel == "" {
			return nil
		}
		if pattern != "" {
			if ok, _ := path.Match(pattern, rel); !ok {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
		}
		dest := filepath.Join(target, filepath.FromSlash(rel))
		if d.IsDir() {
			return os.MkdirAll(dest, 0o755)
		}
		data, err := fs.ReadFile(h.assets, name)
		if err != nil {
			return fmt.Errorf("output: read asset %s: %w", name, err)
		}
		if err := artifact.WriteFileAtomic(dest, data, 0o644); err != nil {
			return fmt.Errorf("output: %w", err)
		}
		return nil
	})
}

// stripLeadingWhitespace drops indentation and blank lines, which carry no
// meaning in HTML.
func stripLeadingWhitespace(content []byte) []byte {
	stripped := leadingSpace.ReplaceAll(content, nil)
	lines := bytes.Split(stripped, []byte("\n"))
	kept := lines[:0]
	for _, line := range lines {
		if len(bytes.TrimSpace(line)) > 0 {
			kept = append(kept, line)
		}
	}
	return append(bytes.Join(kept, []byte("\n")), '\n')
}

type pageData struct {
	Title        string
	Description  string
	StartCompact bool
	Taxon        string
	RunID        string
	Created      string
	Records      []recordView
}

type recordView struct {
	ID          string
	Description string
	Length      int
	GC          string
	Modules     []moduleView
	CDS         []cdsView
}

type moduleView struct {
	ID     string
	State  string
	Source string
	Error  string
}

type cdsView struct {
	Name     string
	Location string
	Product  string
	Function string
	SMCOG    string
	Tree     string
	NCBILink string
}

func buildPage(arc *archive.Archive, records []*record.Record, report pipeline.Report, cfg config.Config) pageData {
	title := cfg.String(OptHTMLTitle)
	if title == "" {
		title = cfg.ArchiveName
	}
	page := pageData{
		Title:        title,
		Description:  cfg.String(OptHTMLDescription),
		StartCompact: cfg.Bool(OptHTMLStartCompact),
		Taxon:        cfg.Taxon,
	}
	if arc != nil {
		page.RunID = arc.RunID
		page.Created = arc.Created.Format("2006-01-02 15:04 MST")
	}
	for _, rec := range records {
		view := recordView{
			ID:          rec.ID,
			Description: rec.Description,
			Length:      len(rec.Sequence),
			GC:          fmt.Sprintf("%.1f%%", rec.GCContent()*100),
		}
		if rr, ok := report.Record(rec.ID); ok {
			for _, o := range rr.Outcomes {
				mv := moduleView{ID: o.Module, State: string(o.State), Source: string(o.Source)}
				if o.Err != nil {
					mv.Error = o.Err.Error()
				}
				view.Modules = append(view.Modules, mv)
			}
		}
		for _, cds := range rec.CDSFeatures() {
			cv := cdsView{
				Name:     cds.Name,
				Location: fmt.Sprintf("%d-%d (%s)", cds.Start+1, cds.End, strandSymbol(cds.Strand)),
				Product:  cds.Product,
				Function: string(rec.GeneFunction(cds.Name)),
			}
			cv.SMCOG, _ = rec.Qualifier(cds.Name, record.QualifierSMCOG)
			cv.Tree, _ = rec.Qualifier(cds.Name, record.QualifierSMCOGTree)
			if cfg.Bool(OptHTMLNCBIContext) {
				cv.NCBILink = fmt.Sprintf("https://www.ncbi.nlm.nih.gov/nuccore/%s?from=%d&to=%d", rec.ID, cds.Start+1, cds.End)
			}
			view.CDS = append(view.CDS, cv)
		}
		page.Records = append(page.Records, view)
	}
	return page
}

func strandSymbol(strand int) string {
	switch strand {
	case 1:
		return "+"
	case -1:
		return "-"
	default:
		return "."
	}
}
