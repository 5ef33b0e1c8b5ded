package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/itchio/wharf/state"
	"github.com/mirbf/archivekit"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/afero"
	"golang.org/x/term"
	"gopkg.in/alecthomas/kingpin.v2"
)

var (
	version = "head"
	app     = kingpin.New("archivekit", "Create, extract and inspect archives")

	compressCmd = app.Command("compress", "Compress files and directories into an archive")
	extractCmd  = app.Command("extract", "Extract one or more archives")
	listCmd     = app.Command("list", "List the entries of an archive")
	treeCmd     = app.Command("tree", "Show the directory tree of an archive")
	formatsCmd  = app.Command("formats", "List supported archive formats")
)

var appArgs = struct {
	config   *string
	quiet    *bool
	verbose  *bool
	language *string
}{
	app.Flag("config", "TOML file with default options").Short('c').String(),
	app.Flag("quiet", "Hide progress indicators & other extra info").Short('q').Bool(),
	app.Flag("verbose", "Display as much extra info as possible").Short('v').Bool(),
	app.Flag("lang", "Language of error messages (zh or en)").Default("zh").Enum("zh", "en"),
}

var compressArgs = struct {
	files    *[]string
	format   *string
	output   *string
	name     *string
	password *string
	level    *int
}{
	compressCmd.Arg("files", "Files or directories to compress").Required().ExistingFilesOrDirs(),
	compressCmd.Flag("format", "Archive format: zip, tar, tar.gz, tar.bz2, tar.lz, gz, bz2, lz").Short('f').Default("zip").String(),
	compressCmd.Flag("output", "Directory to write the archive to").Short('o').String(),
	compressCmd.Flag("name", "Archive name (extension added when missing)").Short('n').String(),
	compressCmd.Flag("password", "Encrypt zip entries with AES-256").Short('p').String(),
	compressCmd.Flag("level", "Compression level 1-9 (0 = format default)").Short('l').Default("0").Int(),
}

var extractArgs = struct {
	archives  *[]string
	output    *string
	password  *string
	entries   *[]string
	overwrite *bool
	encoding  *string
}{
	extractCmd.Arg("archives", "Archives to extract").Required().ExistingFiles(),
	extractCmd.Flag("output", "Directory to extract into (defaults to a folder next to each archive)").Short('o').String(),
	extractCmd.Flag("password", "Password for encrypted archives").Short('p').String(),
	extractCmd.Flag("entry", "Only extract these entries (repeatable)").Short('e').Strings(),
	extractCmd.Flag("overwrite", "Overwrite existing files instead of renaming").Bool(),
	extractCmd.Flag("encoding", "Text encoding of entry names (e.g. GBK, SHIFT_JIS, AUTO)").String(),
}

var listArgs = struct {
	archive  *string
	password *string
}{
	listCmd.Arg("archive", "Archive to list").Required().ExistingFile(),
	listCmd.Flag("password", "Password for encrypted archives").Short('p').String(),
}

var treeArgs = struct {
	archive  *string
	password *string
}{
	treeCmd.Arg("archive", "Archive to inspect").Required().ExistingFile(),
	treeCmd.Flag("password", "Password for encrypted archives").Short('p').String(),
}

var (
	infoColor  = color.New(color.FgCyan).SprintFunc()
	warnColor  = color.New(color.FgYellow).SprintFunc()
	errorColor = color.New(color.FgRed).SprintFunc()
	okColor    = color.New(color.FgGreen).SprintFunc()
)

func main() {
	app.HelpFlag.Short('h')
	app.Version(version)
	app.VersionFlag.Short('V')
	log.SetFlags(0)

	cmd, err := app.Parse(os.Args[1:])
	cmd = kingpin.MustParse(cmd, err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := loadOptions()

	switch cmd {
	case compressCmd.FullCommand():
		compress(ctx, opts)

	case extractCmd.FullCommand():
		extract(ctx, opts)

	case listCmd.FullCommand():
		list(ctx, opts, *listArgs.archive, *listArgs.password)

	case treeCmd.FullCommand():
		tree(ctx, opts, *treeArgs.archive, *treeArgs.password)

	case formatsCmd.FullCommand():
		formats()
	}
}

func must(err error) {
	if err != nil {
		log.Fatal(errorColor(err.Error()))
	}
}

func loadOptions() archivekit.Options {
	fs := afero.NewOsFs()
	opts := archivekit.DefaultOptions()
	if *appArgs.config != "" {
		var err error
		opts, err = archivekit.LoadOptions(fs, *appArgs.config)
		must(err)
	}
	opts.Fs = fs
	opts.Consumer = newConsumer()
	return opts
}

// newConsumer 把日志和进度打印到终端
func newConsumer() *state.Consumer {
	lastPrinted := -1
	return &state.Consumer{
		OnMessage: func(level string, msg string) {
			switch level {
			case "debug":
				if *appArgs.verbose {
					log.Println(msg)
				}
			case "warning":
				log.Println(warnColor(msg))
			case "error":
				log.Println(errorColor(msg))
			default:
				if !*appArgs.quiet {
					log.Println(infoColor(msg))
				}
			}
		},
		OnProgress: func(alpha float64) {
			if *appArgs.quiet {
				return
			}
			pct := int(alpha * 100)
			if pct != lastPrinted {
				lastPrinted = pct
				fmt.Fprintf(os.Stderr, "\r%3d%%", pct)
			}
		},
	}
}

func compress(ctx context.Context, opts archivekit.Options) {
	t := archivekit.ParseArchiveType(*compressArgs.format)
	if t == archivekit.TypeUnknown {
		must(fmt.Errorf("unknown format %q", *compressArgs.format))
	}
	opts.Password = *compressArgs.password
	opts.CompressionLevel = *compressArgs.level

	job := archivekit.NewJob(archivekit.JobDeps{
		Options:  opts,
		Messages: archivekit.DefaultMessages{Language: *appArgs.language},
	})
	result := job.Compress(ctx, &archivekit.CompressionInfo{
		OperationInfo: archivekit.OperationInfo{OutputLocation: *compressArgs.output},
		ArchiveType:   t,
		ArchiveName:   *compressArgs.name,
		SelectedFiles: *compressArgs.files,
	})
	report(result, result.ArchiveNames)
}

func extract(ctx context.Context, opts archivekit.Options) {
	opts.Overwrite = *extractArgs.overwrite
	opts.TextEncoding = *extractArgs.encoding

	var infos []*archivekit.DecompressionInfo
	for _, archive := range *extractArgs.archives {
		infos = append(infos, &archivekit.DecompressionInfo{
			OperationInfo: archivekit.OperationInfo{OutputLocation: *extractArgs.output},
			Item: archivekit.ArchiveItem{
				Path:        archive,
				Entries:     *extractArgs.entries,
				Password:    *extractArgs.password,
				DisplayName: filepath.Base(archive),
			},
			CollectExtractedNames: *appArgs.verbose,
		})
	}

	job := archivekit.NewJob(archivekit.JobDeps{
		Options:   opts,
		Passwords: archivekit.PasswordProviderFunc(promptPassword),
		Messages:  archivekit.DefaultMessages{Language: *appArgs.language},
	})
	result := job.Decompress(ctx, infos)
	report(result, result.ExtractedNames)
}

// promptPassword 从终端读取密码，不回显
func promptPassword(ctx context.Context, displayName string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", nil
	}
	fmt.Fprintf(os.Stderr, "\nPassword for %s: ", displayName)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return string(pw), nil
}

func report(result *archivekit.Result, names []string) {
	if !*appArgs.quiet {
		fmt.Fprintln(os.Stderr)
	}
	elapsed := result.ElapsedTime.Round(time.Millisecond)

	switch result.Status {
	case archivekit.StatusSuccess:
		log.Println(okColor(fmt.Sprintf("done in %s", elapsed)))
	case archivekit.StatusInterrupt:
		log.Println(warnColor("interrupted"))
	default:
		log.Println(errorColor(fmt.Sprintf("%s: %s", result.Status, result.Message)))
		if *appArgs.verbose && result.VerboseMessage != "" {
			log.Println(result.VerboseMessage)
		}
	}

	if *appArgs.verbose {
		for _, name := range names {
			log.Println("  " + name)
		}
	}
	if result.Status != archivekit.StatusSuccess {
		os.Exit(1)
	}
}

func list(ctx context.Context, opts archivekit.Options, archive, password string) {
	entries, err := archivekit.ListEntries(ctx, archive, password, opts)
	must(err)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Size", "Modified"})

	var total uint64
	for _, entry := range entries {
		size := humanize.IBytes(entry.Size)
		if entry.IsDirectory {
			size = "-"
		}
		modified := ""
		if !entry.Modified.IsZero() {
			modified = entry.Modified.Format("2006-01-02 15:04")
		}
		table.Append([]string{entry.Key, size, modified})
		total += entry.Size
	}
	table.SetFooter([]string{fmt.Sprintf("%d entries", len(entries)), humanize.IBytes(total), ""})
	table.Render()
}

func tree(ctx context.Context, opts archivekit.Options, archive, password string) {
	root, err := archivekit.LoadArchiveTree(ctx, archive, password, opts)
	must(err)

	fmt.Println(infoColor(root.Name()))
	printChildren(&root.TreeNode, "")
}

func printChildren(dir *archivekit.TreeNode, indent string) {
	children := dir.Children()
	for i, child := range children {
		branch, next := "├── ", "│   "
		if i == len(children)-1 {
			branch, next = "└── ", "    "
		}

		switch node := child.(type) {
		case *archivekit.TreeNode:
			fmt.Println(indent + branch + infoColor(node.Name()+"/"))
			printChildren(node, indent+next)
		case *archivekit.FileLeaf:
			label := fmt.Sprintf("%s (%s)", node.Name(), humanize.IBytes(node.Size))
			if node.IsArchive {
				label = okColor(label)
			}
			fmt.Println(indent + branch + label)
		}
	}
}

func formats() {
	writable := make(map[string]bool)
	for _, f := range archivekit.GetWritableFormats() {
		writable[f] = true
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Format", "Extract", "Create"})
	for _, f := range archivekit.GetSupportedFormats() {
		create := "no"
		if writable[f] {
			create = "yes"
		}
		table.Append([]string{f, "yes", create})
	}
	table.Render()
}
