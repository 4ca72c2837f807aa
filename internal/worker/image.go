package worker

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"content-api/internal/domain"
)

// imageParallelism limita quantos arquivos são processados ao mesmo tempo
// dentro de uma única tarefa de otimização
const imageParallelism = 4

// ImageOptimizer redimensiona e recodifica lotes de imagens enviadas,
// devolvendo as URLs públicas dos arquivos otimizados
type ImageOptimizer struct {
	logger domain.Logger
}

// NewImageOptimizer cria o otimizador de imagens
func NewImageOptimizer(logger domain.Logger) *ImageOptimizer {
	return &ImageOptimizer{logger: logger}
}

// Task retorna a TaskFunc registrável no dispatcher
func (o *ImageOptimizer) Task() domain.TaskFunc {
	return func(ctx context.Context, payload interface{}) domain.TaskResult {
		input, ok := payload.(domain.ImagePayload)
		if !ok {
			return domain.TaskResult{
				Success: false,
				Error:   fmt.Sprintf("optimize_images: unexpected payload type %T", payload),
			}
		}

		return o.optimize(ctx, input)
	}
}

// optimize processa o lote; qualquer arquivo com falha derruba a tarefa
func (o *ImageOptimizer) optimize(ctx context.Context, input domain.ImagePayload) domain.TaskResult {
	if len(input.Paths) == 0 {
		return domain.TaskResult{
			Success: false,
			Error:   "optimize_images: empty path list",
		}
	}

	maxWidth := input.MaxWidth
	if maxWidth <= 0 {
		maxWidth = 1200
	}
	quality := input.Quality
	if quality <= 0 || quality > 100 {
		quality = 80
	}

	urls := make([]string, len(input.Paths))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(imageParallelism)

	for i, path := range input.Paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			outPath, err := o.optimizeFile(path, maxWidth, quality)
			if err != nil {
				return fmt.Errorf("failed to optimize %s: %w", filepath.Base(path), err)
			}

			url := fmt.Sprintf("%s://%s/static/uploads/%s", input.Protocol, input.Host, filepath.Base(outPath))

			mu.Lock()
			urls[i] = url
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("Image optimization failed", err, map[string]interface{}{
			"files": len(input.Paths),
		})
		return domain.TaskResult{
			Success: false,
			Error:   err.Error(),
		}
	}

	o.logger.Info("Image batch optimized", map[string]interface{}{
		"files":     len(input.Paths),
		"max_width": maxWidth,
		"quality":   quality,
	})

	return domain.TaskResult{
		Success: true,
		Data: map[string]interface{}{
			"urls": urls,
		},
	}
}

// optimizeFile redimensiona um arquivo para a largura máxima preservando a
// proporção e o recodifica como JPEG ao lado do original
func (o *ImageOptimizer) optimizeFile(path string, maxWidth, quality int) (string, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("failed to open image: %w", err)
	}

	if img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}

	outPath := optimizedPath(path)
	if err := imaging.Save(img, outPath, imaging.JPEGQuality(quality)); err != nil {
		return "", fmt.Errorf("failed to save optimized image: %w", err)
	}

	return outPath, nil
}

// optimizedPath deriva o caminho do arquivo otimizado a partir do original
func optimizedPath(path string) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return base + "-opt.jpg"
}
