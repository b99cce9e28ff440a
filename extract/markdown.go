package extract

import (
	"fmt"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// toMarkdown renders extracted HTML as commonmark with table support.
func toMarkdown(htmlFragment string) (string, error) {
	md, err := mdConverter.ConvertString(htmlFragment)
	if err != nil {
		return "", fmt.Errorf("extract: markdown conversion: %w", err)
	}
	return md, nil
}
