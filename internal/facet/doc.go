// Package facet описывает facets, engine и sorting OpenRefine.
//
// # Обзор
//
// Facet — фильтр/гистограмма по значениям колонки, который вычисляет сервер.
// Клиент только собирает engine JSON и разбирает ответ compute-facets.
//
// # Ключевые компоненты
//
// ## Facets
//
//   - TextFacet (type=list) — выбор конкретных значений колонки
//   - BoolFacet, StarredFacet, FlaggedFacet, BlankFacet — list facet по
//     булевому выражению
//   - ReconJudgmentFacet — list facet по результату reconciliation
//   - TextFilter (type=text) — подстрочный фильтр
//   - NumericFacet (type=range) — диапазон From..To
//
// Параметры facet хранятся в snake_case и переводятся в camelCase
// пакетом naming при сериализации.
//
// ## Engine
//
// Упорядоченный набор facets + mode (row-based | record-based).
// Передаётся серверу в поле engine каждого запроса проекта.
//
//	engine := facet.NewEngine(facet.NewTextFacet("Party Code"))
//	ethnicity := facet.NewTextFacet("Ethnicity")
//	engine.AddFacet(ethnicity)
//	ethnicity.Include("B")
//
// ## Responses
//
// FacetsResponse — разобранный ответ compute-facets. Ответ на конкретный
// facet ищется по индексу, по самому facet или по имени колонки.
package facet
