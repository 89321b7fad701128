package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/ticketapp/internal/auth"
	"github.com/zombor/ticketapp/internal/receipt"
	"github.com/zombor/ticketapp/internal/scanning"
	"github.com/zombor/ticketapp/internal/sheets"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

type database interface {
	receipt.DB
	sheets.Store
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// A missing .env file is fine
	_ = godotenv.Load()

	fs := ff.NewFlagSet("ticketapp")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		dbPath        = fs.StringLong("db", "ticketapp.db", "Database file path")
		storeType     = fs.StringLong("store", "bolt", "Database type: 'bolt' or 'sqlite'")
		storagePath   = fs.StringLong("storage", "./temp", "Directory for uploads while they are processed")
		debugDir      = fs.StringLong("debug-dir", "", "Write OCR text, LLM output and normalized output here (optional)")
		ocrType       = fs.StringLong("ocr", "gemini", "OCR engine: 'gemini' or 'tesseract'")
		tessBinary    = fs.StringLong("tesseract-bin", "tesseract", "Tesseract binary")
		tessLang      = fs.StringLong("tesseract-lang", "spa", "Tesseract language")
		tessdata      = fs.StringLong("tessdata-dir", "", "Tesseract tessdata directory (optional)")
		llmType       = fs.StringLong("llm", "gemini", "LLM for structuring: 'gemini' or 'ollama'")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llama3.1", "Ollama model name")
		sinkType      = fs.StringLong("sink", "sheets", "Where receipts are saved: 'sheets' or 'xlsx'")
		xlsxDir       = fs.StringLong("xlsx-dir", "./workbooks", "Directory for per-user XLSX workbooks")
		clientSecrets = fs.StringLong("client-secrets", "", "Google OAuth client secrets JSON file")
		clientID      = fs.StringLong("google-client-id", "", "Google OAuth client id (when no secrets file is given)")
		clientSecret  = fs.StringLong("google-client-secret", "", "Google OAuth client secret")
		serverURL     = fs.StringLong("server-url", "http://localhost:8080", "Public URL of this server, used for the OAuth redirect")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("TICKETAPP"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Initialize database
	slog.Info("Initializing database...", "type", *storeType, "path", *dbPath)
	var db database
	var err error
	switch *storeType {
	case "bolt":
		db, err = receipt.NewBoltDB(*dbPath)
	case "sqlite":
		db, err = receipt.NewSQLiteDB(*dbPath)
	default:
		err = fmt.Errorf("invalid store type %q, valid: bolt or sqlite", *storeType)
	}
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Gemini is shared when it serves both OCR and structuring
	var gemini *scanning.Gemini
	getGemini := func() *scanning.Gemini {
		if gemini != nil {
			return gemini
		}
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini...", "model", *geminiModel)
		gemini, err = scanning.NewGemini(apiKey, *geminiModel, nil)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
		return gemini
	}

	var ocr scanning.TextExtractor
	switch *ocrType {
	case "gemini":
		ocr = getGemini()
	case "tesseract":
		slog.Info("Initializing Tesseract...", "binary", *tessBinary, "language", *tessLang)
		ocr = scanning.NewTesseract(scanning.TesseractConfig{
			Binary:      *tessBinary,
			Language:    *tessLang,
			TessdataDir: *tessdata,
		})
	default:
		slog.Error("Invalid OCR type", "type", *ocrType, "valid", "gemini or tesseract")
		os.Exit(1)
	}

	var structurer scanning.Structurer
	switch *llmType {
	case "gemini":
		structurer = getGemini()
	case "ollama":
		slog.Info("Initializing Ollama...", "url", *ollamaURL, "model", *ollamaModel)
		structurer, err = scanning.NewOllama(*ollamaURL, *ollamaModel, nil)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid LLM type", "type", *llmType, "valid", "gemini or ollama")
		os.Exit(1)
	}
	defer ocr.Close()
	if any(structurer) != any(ocr) {
		defer structurer.Close()
	}

	// Initialize OAuth
	redirectURL := strings.TrimSuffix(*serverURL, "/") + "/oauth2callback"
	var authenticator *auth.Google
	if *clientSecrets != "" {
		authenticator, err = auth.NewGoogleFromFile(*clientSecrets, redirectURL)
		if err != nil {
			slog.Error("Failed to load OAuth client secrets", "error", err)
			os.Exit(1)
		}
	} else {
		if *clientID == "" || *clientSecret == "" {
			slog.Error("Google OAuth credentials are required. Set --client-secrets or --google-client-id and --google-client-secret")
			os.Exit(1)
		}
		authenticator = auth.NewGoogle(*clientID, *clientSecret, redirectURL)
	}

	// Initialize exporter
	var exporter receipt.Exporter
	switch *sinkType {
	case "sheets":
		exporter = sheets.NewGoogle(db, authenticator, nil)
	case "xlsx":
		exporter, err = sheets.NewWorkbook(*xlsxDir, db, nil)
		if err != nil {
			slog.Error("Failed to initialize workbooks", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid sink type", "type", *sinkType, "valid", "sheets or xlsx")
		os.Exit(1)
	}

	// Initialize storage
	slog.Info("Initializing storage...")
	store, err := receipt.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Initialize service
	receiptService := receipt.NewService(db, store, ocr, structurer, exporter)
	if *debugDir != "" {
		debugStore, err := receipt.NewLocalStorage(*debugDir)
		if err != nil {
			slog.Error("Failed to initialize debug directory", "error", err)
			os.Exit(1)
		}
		receiptService.WithTracer(receipt.NewStorageTracer(debugStore, nil))
		slog.Info("Debug output enabled", "dir", *debugDir)
	}

	// Initialize server
	server := receipt.NewServer(receiptService, receipt.NewSessions(db, authenticator))

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Failed to shut down server", "error", err)
	}
}
