package refine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// Типы кластеризаторов.
const (
	ClustererBinning = "binning"
	ClustererKNN     = "knn"
)

// ClusterValue — значение в кластере и число его вхождений.
type ClusterValue struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// ClusterOptions — параметры ComputeClusters.
// Пустые поля заполняются значениями по умолчанию для типа.
type ClusterOptions struct {
	Type     string         // binning (по умолчанию) или knn
	Function string         // fingerprint, ngram-fingerprint, metaphone3, levenshtein, ppm, ...
	Params   map[string]any // параметры функции
}

// clusterer — wire-формат параметра clusterer.
type clusterer struct {
	Type     string         `json:"type"`
	Function string         `json:"function"`
	Column   string         `json:"column"`
	Params   map[string]any `json:"params"`
}

// defaultClusterer возвращает настройки по умолчанию для типа.
func defaultClusterer(typ string) (clusterer, error) {
	switch typ {
	case "", ClustererBinning:
		return clusterer{
			Type:     ClustererBinning,
			Function: "fingerprint",
			Params:   map[string]any{},
		}, nil
	case ClustererKNN:
		return clusterer{
			Type:     ClustererKNN,
			Function: "levenshtein",
			Params: map[string]any{
				"radius":              1,
				"blocking-ngram-size": 6,
			},
		}, nil
	default:
		return clusterer{}, fmt.Errorf("unknown clusterer type %q", typ)
	}
}

// ComputeClusters вычисляет кластеры похожих значений колонки.
// Значения внутри кластера сервер упорядочивает по убыванию частоты.
func (p *Project) ComputeClusters(ctx context.Context, column string, opts ClusterOptions) ([][]ClusterValue, error) {
	c, err := defaultClusterer(opts.Type)
	if err != nil {
		return nil, err
	}
	if opts.Function != "" {
		c.Function = opts.Function
	}
	if opts.Params != nil {
		c.Params = opts.Params
	}
	c.Column = column

	encoded, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal clusterer: %w", err)
	}

	var wire [][]struct {
		V string `json:"v"`
		C int    `json:"c"`
	}
	if err := p.DoJSON(ctx, "compute-clusters", url.Values{"clusterer": {string(encoded)}}, &wire); err != nil {
		return nil, err
	}

	clusters := make([][]ClusterValue, 0, len(wire))
	for _, wc := range wire {
		cluster := make([]ClusterValue, 0, len(wc))
		for _, v := range wc {
			cluster = append(cluster, ClusterValue{Value: v.V, Count: v.C})
		}
		clusters = append(clusters, cluster)
	}
	return clusters, nil
}

// ClusterEdits превращает кластеры в правки mass-edit.
//
// Первое значение кластера становится целевым, остальные заменяются на него.
// Кластеры из одного значения пропускаются. limit > 0 ограничивает число
// кластеров.
func ClusterEdits(clusters [][]ClusterValue, limit int) []Edit {
	edits := make([]Edit, 0, len(clusters))
	for _, cluster := range clusters {
		if limit > 0 && len(edits) >= limit {
			break
		}
		if len(cluster) < 2 {
			continue
		}

		target := cluster[0].Value
		from := make([]string, 0, len(cluster)-1)
		for _, v := range cluster[1:] {
			from = append(from, v.Value)
		}
		edits = append(edits, Edit{From: from, To: target})
	}
	return edits
}

// ClusterEditResult — итог ClusterEdit.
type ClusterEditResult struct {
	Clusters int     `json:"clusters"`
	Edits    []Edit  `json:"edits"`
	Status   *Status `json:"status,omitempty"`
}

// ClusterEdit вычисляет кластеры колонки и сливает значения каждого кластера
// в его первое значение одним запросом mass-edit. limit > 0 ограничивает
// число обработанных кластеров. Если сливать нечего, mass-edit не выполняется.
func (p *Project) ClusterEdit(ctx context.Context, column string, opts ClusterOptions, limit int) (*ClusterEditResult, error) {
	clusters, err := p.ComputeClusters(ctx, column, opts)
	if err != nil {
		return nil, err
	}

	result := &ClusterEditResult{
		Clusters: len(clusters),
		Edits:    ClusterEdits(clusters, limit),
	}
	if len(result.Edits) == 0 {
		return result, nil
	}

	status, err := p.MassEdit(ctx, column, result.Edits, "")
	if err != nil {
		return nil, err
	}
	result.Status = status
	return result, nil
}

// WriteClustersTSV пишет кластеры построчно: значения одного кластера через
// табуляцию. Табуляции и переводы строк внутри значений заменяются пробелом.
func WriteClustersTSV(w io.Writer, clusters [][]ClusterValue) error {
	bw := bufio.NewWriter(w)
	clean := strings.NewReplacer("\t", " ", "\r", " ", "\n", " ")

	for _, cluster := range clusters {
		values := make([]string, len(cluster))
		for i, v := range cluster {
			values[i] = clean.Replace(v.Value)
		}
		if _, err := bw.WriteString(strings.Join(values, "\t") + "\n"); err != nil {
			return fmt.Errorf("write cluster: %w", err)
		}
	}
	return bw.Flush()
}
