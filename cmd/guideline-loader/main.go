// Package main 写作规范导入工具：按段落切分 markdown 文件，
// 向量化后写入 Milvus 供生成时的 file_search 工具检索
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"agentic-article-api/internal/config"
	"agentic-article-api/internal/infrastructure/embedding"
	"agentic-article-api/internal/infrastructure/persistence/milvus"
	"agentic-article-api/pkg/logger"
)

const (
	// maxSegmentRunes 单个片段的长度上限，接近该值时切新段
	maxSegmentRunes = 1200
	embedBatchSize  = 16
)

func main() {
	var dir string
	flag.StringVar(&dir, "dir", "", "directory containing guideline .md/.txt files")
	flag.Parse()

	if dir == "" {
		fmt.Println("usage: guideline-loader -dir <guideline-directory>")
		os.Exit(1)
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(
		cfg.Observability.Logging.Level,
		cfg.Observability.Logging.Format,
	)

	ctx := context.Background()

	if err := run(ctx, cfg, dir); err != nil {
		logger.Fatal(ctx, "guideline load failed", err)
	}
}

func run(ctx context.Context, cfg *config.Config, dir string) error {
	client, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		return fmt.Errorf("connect milvus: %w", err)
	}
	defer client.Close()

	repo := milvus.NewRepository(client)
	if err := repo.EnsureGuidelineCollection(ctx); err != nil {
		return err
	}

	embedder, err := embedding.NewEinoEmbedder(ctx, &cfg.Embedding)
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}

	files, err := guidelineFiles(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no .md or .txt files found in %s", dir)
	}

	total := 0
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read %s: %w", file, err)
		}

		title, chunks := splitSegments(string(content), filepath.Base(file))
		if len(chunks) == 0 {
			logger.Warn(ctx, "file has no usable content, skipped", "file", file)
			continue
		}

		for start := 0; start < len(chunks); start += embedBatchSize {
			end := start + embedBatchSize
			if end > len(chunks) {
				end = len(chunks)
			}
			batch := chunks[start:end]

			vectors, err := embedder.EmbedStrings(ctx, batch)
			if err != nil {
				return fmt.Errorf("embed %s: %w", file, err)
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("embed %s: got %d vectors for %d segments", file, len(vectors), len(batch))
			}

			segments := make([]*milvus.GuidelineSegment, 0, len(batch))
			for i, text := range batch {
				vec := make([]float32, len(vectors[i]))
				for j, v := range vectors[i] {
					vec[j] = float32(v)
				}
				segments = append(segments, &milvus.GuidelineSegment{
					ID:          uuid.New().String(),
					Title:       title,
					Source:      filepath.Base(file),
					TextContent: text,
					Vector:      vec,
				})
			}

			if err := repo.InsertSegments(ctx, segments); err != nil {
				return fmt.Errorf("insert %s: %w", file, err)
			}
			total += len(segments)
		}

		logger.Info(ctx, "guideline file loaded", "file", file, "segments", len(chunks))
	}

	logger.Info(ctx, "guideline load complete", "files", len(files), "segments", total)
	return nil
}

func guidelineFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".md" || ext == ".txt" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return files, nil
}

// splitSegments 按空行切段并合并到接近长度上限，
// 标题取首个 markdown 标题，没有则用文件名
func splitSegments(content, fallbackTitle string) (string, []string) {
	title := fallbackTitle
	paragraphs := strings.Split(content, "\n\n")

	var segments []string
	var current strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.HasPrefix(p, "#") && title == fallbackTitle {
			firstLine, _, _ := strings.Cut(p, "\n")
			title = strings.TrimSpace(strings.TrimLeft(firstLine, "# "))
		}

		if current.Len() > 0 && len([]rune(current.String()))+len([]rune(p)) > maxSegmentRunes {
			segments = append(segments, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	if current.Len() > 0 {
		segments = append(segments, current.String())
	}
	return title, segments
}
