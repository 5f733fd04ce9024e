package parser

import (
	"github.com/insightdelivered/broker-statement-importer/internal/layout"
	"github.com/insightdelivered/broker-statement-importer/internal/models"
)

// LocateTable finds the transaction table header on one page and returns the
// lines that follow it. Lines must already be trimmed and non-empty (see
// SplitLines). A page without a header yields an empty region.
func LocateTable(vocab *layout.Vocabulary, page int, lines []string) models.TableRegion {
	for i, line := range lines {
		if vocab.IsHeader(line) {
			return models.TableRegion{
				Page:        page,
				HeaderFound: true,
				HeaderLine:  i,
				Lines:       lines[i+1:],
			}
		}
	}
	return models.TableRegion{Page: page, HeaderLine: -1}
}
