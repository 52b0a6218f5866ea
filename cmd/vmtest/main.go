// vmtest compiles every test program at each optimisation level, runs the
// results on the emulator and checks that all levels leave the machine in the
// same observable state, and that this state matches the golden file.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/tebeka/atexit"
	"github.com/xplshn/vmtranslator/pkg/asm"
	"github.com/xplshn/vmtranslator/pkg/config"
	"github.com/xplshn/vmtranslator/pkg/emulator"
	"github.com/xplshn/vmtranslator/pkg/translator"
)

// Snapshot is the backend-independent state left by a halted program.
type Snapshot struct {
	Halted  bool             `json:"halted"`
	Frame   []int16          `json:"frame"`
	Statics map[string]int16 `json:"statics,omitempty"`
	Heap    []int16          `json:"heap,omitempty"`
}

type LevelResult struct {
	Level        int           `json:"level"`
	Backend      string        `json:"backend"`
	Instructions int           `json:"instructions"`
	Steps        int           `json:"steps"`
	Fingerprint  string        `json:"fingerprint"`
	Compile      time.Duration `json:"compile"`
	Runtime      time.Duration `json:"runtime"`
	Error        string        `json:"error,omitempty"`
	Snapshot     *Snapshot     `json:"snapshot,omitempty"`
}

type Golden struct {
	SourceHash string    `json:"source_hash"`
	Snapshot   *Snapshot `json:"snapshot"`
}

type FileTestResult struct {
	File    string         `json:"file"`
	Status  string         `json:"status"` // PASS, FAIL, SKIP, ERROR
	Message string         `json:"message,omitempty"`
	Diff    string         `json:"diff,omitempty"`
	Levels  []*LevelResult `json:"levels,omitempty"`
}

var (
	testFiles      = flag.String("test-files", "testdata/*", "Glob pattern(s) for programs to test: .vm files or directories (space-separated).")
	skipFiles      = flag.String("skip-files", "", "Programs to skip (space-separated).")
	generateGolden = flag.String("generate-golden", "", "Generate a golden .json file for a given program.")
	outputJSON     = flag.String("output", ".test_results.json", "Output file for the JSON test report.")
	jsonDir        = flag.String("dir", "", "Directory to store/read golden JSON files (defaults to the program's directory).")
	maxSteps       = flag.Int("steps", 5_000_000, "Maximum number of emulated instructions per run.")
	heapWords      = flag.Int("heap", 32, "Number of words from RAM[2048] included in the snapshot.")
	jobs           = flag.Int("j", 4, "Number of parallel test jobs.")
	verbose        = flag.Bool("v", false, "Enable verbose logging.")
	keepAsm        = flag.Bool("keep", false, "Keep the generated .asm listings in a temporary directory.")
)

const (
	cRed    = "\x1b[91m"
	cYellow = "\x1b[93m"
	cGreen  = "\x1b[92m"
	cCyan   = "\x1b[96m"
	cNone   = "\x1b[0m"
)

const (
	stackBase = 256
	heapBase  = 2048
)

var levels = []int{0, 1, 2}

var staticSymbol = regexp.MustCompile(`^[A-Za-z_][\w]*\.\d+$`)

func main() {
	flag.Parse()
	log.SetFlags(0)

	var asmDir string
	if *keepAsm {
		dir, err := os.MkdirTemp("", "vmtest-*")
		if err != nil {
			log.Printf("%s[ERROR]%s Failed to create temp directory: %v\n", cRed, cNone, err)
			atexit.Exit(1)
		}
		asmDir = dir
		log.Printf("Keeping listings in %s\n", asmDir)
	}

	if *generateGolden != "" {
		handleGenerateGolden(*generateGolden)
		atexit.Exit(0)
	}
	atexit.Exit(handleRunTestSuite(asmDir))
}

func getJSONPath(program string) string {
	name := "." + filepath.Base(filepath.Clean(program)) + ".json"
	if *jsonDir != "" {
		return filepath.Join(*jsonDir, name)
	}
	return filepath.Join(filepath.Dir(filepath.Clean(program)), name)
}

// hashSources hashes every source of a program in name order.
func hashSources(srcs []translator.Source) string {
	h := xxhash.New()
	for _, s := range srcs {
		io.WriteString(h, filepath.Base(s.Name))
		io.WriteString(h, "\x00")
		io.WriteString(h, s.Content)
		io.WriteString(h, "\x00")
	}
	return fmt.Sprintf("%x", h.Sum64())
}

func handleGenerateGolden(program string) {
	log.Printf("Generating golden file for %s...\n", program)
	srcs, _, err := translator.Load(program)
	if err != nil {
		log.Printf("%s[ERROR]%s Could not read %s: %v\n", cRed, cNone, program, err)
		atexit.Exit(1)
	}

	// The unoptimised direct build is the reference.
	res := runLevel(srcs, 0, "")
	if res.Error != "" {
		log.Printf("%s[ERROR]%s Could not generate golden file for %s: %s\n", cRed, cNone, program, res.Error)
		atexit.Exit(1)
	}

	data, err := json.MarshalIndent(Golden{SourceHash: hashSources(srcs), Snapshot: res.Snapshot}, "", "  ")
	if err != nil {
		log.Printf("%s[ERROR]%s Failed to marshal golden data to JSON: %v\n", cRed, cNone, err)
		atexit.Exit(1)
	}
	if *jsonDir != "" {
		if err := os.MkdirAll(*jsonDir, 0755); err != nil {
			log.Printf("%s[ERROR]%s Failed to create directory %s: %v\n", cRed, cNone, *jsonDir, err)
			atexit.Exit(1)
		}
	}
	goldenFile := getJSONPath(program)
	if err := os.WriteFile(goldenFile, data, 0644); err != nil {
		log.Printf("%s[ERROR]%s Failed to write golden file %s: %v\n", cRed, cNone, goldenFile, err)
		atexit.Exit(1)
	}
	log.Printf("%s[SUCCESS]%s Golden file created at %s\n", cGreen, cNone, goldenFile)
}

func expandGlobPatterns(patterns string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range strings.Fields(patterns) {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				continue
			}
			if !info.IsDir() && filepath.Ext(m) != ".vm" {
				continue
			}
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

func handleRunTestSuite(asmDir string) int {
	files, err := expandGlobPatterns(*testFiles)
	if err != nil {
		log.Printf("%s[ERROR]%s Invalid glob pattern(s): %v\n", cRed, cNone, err)
		return 1
	}
	if len(files) == 0 {
		log.Println("No test programs found matching the pattern(s).")
		return 0
	}

	skipList := make(map[string]bool)
	for _, f := range strings.Fields(*skipFiles) {
		skipList[f] = true
	}

	type task struct {
		file string
		srcs []translator.Source
		hash string
	}
	tasks := make(chan task, len(files))
	resultsChan := make(chan *FileTestResult, len(files))
	var wg sync.WaitGroup

	for i := 0; i < *jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				resultsChan <- testProgram(t.file, t.srcs, t.hash, asmDir)
			}
		}()
	}

	// Feed the tasks channel, skipping programs with identical content
	seenHashes := make(map[string]string)
	for _, file := range files {
		if skipList[file] {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: "Explicitly skipped"}
			continue
		}
		srcs, _, err := translator.Load(file)
		if err != nil {
			resultsChan <- &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to load program: %v", err)}
			continue
		}
		hash := hashSources(srcs)
		if original, seen := seenHashes[hash]; seen {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: fmt.Sprintf("Content is identical to %s", original)}
			continue
		}
		seenHashes[hash] = file
		tasks <- task{file: file, srcs: srcs, hash: hash}
	}
	close(tasks)

	wg.Wait()
	close(resultsChan)

	var allResults []*FileTestResult
	for result := range resultsChan {
		allResults = append(allResults, result)
	}
	sort.Slice(allResults, func(i, j int) bool { return allResults[i].File < allResults[j].File })

	printSummary(allResults)
	writeJSONReport(allResults)

	for _, r := range allResults {
		if r.Status == "FAIL" || r.Status == "ERROR" {
			return 1
		}
	}
	return 0
}

func testProgram(file string, srcs []translator.Source, hash, asmDir string) *FileTestResult {
	result := &FileTestResult{File: file}
	for _, level := range levels {
		result.Levels = append(result.Levels, runLevel(srcs, level, asmDir))
	}

	var diffs strings.Builder
	ref := result.Levels[0]
	if ref.Error != "" {
		result.Status = "ERROR"
		result.Message = fmt.Sprintf("-O%d: %s", ref.Level, ref.Error)
		return result
	}
	for _, lr := range result.Levels[1:] {
		if lr.Error != "" {
			fmt.Fprintf(&diffs, "-O%d (%s) failed: %s\n", lr.Level, lr.Backend, lr.Error)
			continue
		}
		if d := cmp.Diff(ref.Snapshot, lr.Snapshot); d != "" {
			fmt.Fprintf(&diffs, "-O%d (%s) differs from -O0 (-want +got):\n%s", lr.Level, lr.Backend, d)
		}
	}

	goldenFile := getJSONPath(file)
	if data, err := os.ReadFile(goldenFile); err == nil {
		var golden Golden
		if err := json.Unmarshal(data, &golden); err != nil {
			result.Status = "ERROR"
			result.Message = fmt.Sprintf("Could not parse golden file %s: %v", goldenFile, err)
			return result
		}
		if golden.SourceHash != hash {
			log.Printf("%s[WARN]%s %s: golden file is stale, regenerate with --generate-golden\n", cYellow, cNone, file)
		} else if d := cmp.Diff(golden.Snapshot, ref.Snapshot); d != "" {
			fmt.Fprintf(&diffs, "golden snapshot mismatch (-want +got):\n%s", d)
		}
	}

	if diffs.Len() > 0 {
		result.Status = "FAIL"
		result.Message = "Machine state differs between optimisation levels or from golden file"
		result.Diff = diffs.String()
		return result
	}
	result.Status = "PASS"
	result.Message = fmt.Sprintf("All %d levels agree", len(levels))
	return result
}

// runLevel translates srcs as a whole program at the given level and runs
// it until it halts.
func runLevel(srcs []translator.Source, level int, asmDir string) *LevelResult {
	cfg := config.NewConfig()
	lr := &LevelResult{Level: level}
	if err := cfg.ApplyLevel(level); err != nil {
		lr.Error = err.Error()
		return lr
	}
	lr.Backend = cfg.BackendName

	t, err := translator.New(cfg)
	if err != nil {
		lr.Error = err.Error()
		return lr
	}
	start := time.Now()
	res, err := t.TranslateProgram(srcs)
	lr.Compile = time.Since(start)
	if err != nil {
		lr.Error = err.Error()
		return lr
	}
	lr.Instructions = len(res.Program)
	lr.Fingerprint = fmt.Sprintf("%016x", res.Fingerprint)

	if asmDir != "" {
		name := fmt.Sprintf("%s-O%d.asm", strings.TrimSuffix(filepath.Base(srcs[0].Name), ".vm"), level)
		if err := os.WriteFile(filepath.Join(asmDir, name), []byte(asm.Text(res.Program)), 0644); err != nil && *verbose {
			log.Printf("%s[WARN]%s could not keep listing %s: %v\n", cYellow, cNone, name, err)
		}
	}

	cpu, err := emulator.New(res.Program)
	if err != nil {
		lr.Error = err.Error()
		return lr
	}
	start = time.Now()
	err = cpu.Run(*maxSteps)
	lr.Runtime = time.Since(start)
	lr.Steps = cpu.Steps
	if err != nil {
		lr.Error = err.Error()
		return lr
	}
	lr.Snapshot = snapshot(cpu, res.Program)
	return lr
}

// snapshot captures the current frame (locals and working stack), every
// non-zero static variable and the start of the heap. Zero statics are left
// out since dead-code removal may drop their only reference.
func snapshot(cpu *emulator.CPU, prog []asm.Instruction) *Snapshot {
	base := cpu.RAM[1]
	if base < stackBase {
		base = stackBase
	}
	s := &Snapshot{Halted: cpu.Halted, Frame: cpu.Stack(base)}
	for _, inst := range prog {
		load, ok := inst.(*asm.AddressLoad)
		if !ok || !staticSymbol.MatchString(load.Symbol) {
			continue
		}
		if v, ok := cpu.PeekSymbol(load.Symbol); ok && v != 0 {
			if s.Statics == nil {
				s.Statics = make(map[string]int16)
			}
			s.Statics[load.Symbol] = v
		}
	}
	for i := 0; i < *heapWords; i++ {
		s.Heap = append(s.Heap, cpu.Peek(uint16(heapBase+i)))
	}
	return s
}

func printSummary(results []*FileTestResult) {
	var passed, failed, skipped, errored int
	for _, result := range results {
		fmt.Println("----------------------------------------------------------------------")
		fmt.Printf("Testing %s%s%s...\n", cCyan, result.File, cNone)
		switch result.Status {
		case "PASS":
			passed++
			fmt.Printf("  [%sPASS%s] %s\n", cGreen, cNone, result.Message)
		case "FAIL":
			failed++
			fmt.Printf("  [%sFAIL%s] %s\n", cRed, cNone, result.Message)
			fmt.Println(formatDiff(result.Diff))
		case "SKIP":
			skipped++
			fmt.Printf("  [%sSKIP%s] %s\n", cYellow, cNone, result.Message)
		case "ERROR":
			errored++
			fmt.Printf("  [%sERROR%s] %s\n", cRed, cNone, result.Message)
		}
		if *verbose {
			for _, lr := range result.Levels {
				fmt.Printf("    -O%d %-6s %6d insts %9d steps  comp %s  run %s  %s\n",
					lr.Level, lr.Backend, lr.Instructions, lr.Steps,
					formatDuration(lr.Compile), formatDuration(lr.Runtime), lr.Fingerprint)
			}
		}
	}
	fmt.Println("----------------------------------------------------------------------")
	fmt.Printf("%sSummary:%s %s%d passed%s, %s%d failed%s, %s%d skipped%s, %s%d errors%s\n",
		cCyan, cNone, cGreen, passed, cNone, cRed, failed, cNone, cYellow, skipped, cNone, cRed, errored, cNone)
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%6dus", d.Microseconds())
	}
	return fmt.Sprintf("%6dms", d.Milliseconds())
}

func formatDiff(diff string) string {
	var sb strings.Builder
	for _, line := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
		switch {
		case strings.HasPrefix(strings.TrimSpace(line), "-"):
			sb.WriteString("    " + cRed + line + cNone + "\n")
		case strings.HasPrefix(strings.TrimSpace(line), "+"):
			sb.WriteString("    " + cGreen + line + cNone + "\n")
		default:
			sb.WriteString("    " + line + "\n")
		}
	}
	return sb.String()
}

func writeJSONReport(results []*FileTestResult) {
	report := make(map[string]*FileTestResult, len(results))
	for _, r := range results {
		report[r.File] = r
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Printf("%s[ERROR]%s Failed to marshal results to JSON: %v\n", cRed, cNone, err)
		return
	}
	outputFile := *outputJSON
	if *jsonDir != "" {
		outputFile = filepath.Join(*jsonDir, *outputJSON)
	}
	if err := os.WriteFile(outputFile, data, 0644); err != nil {
		log.Printf("%s[ERROR]%s Failed to write JSON report %s: %v\n", cRed, cNone, outputFile, err)
	}
}
