// Package refine — клиентская библиотека для HTTP API сервера OpenRefine.
//
// # Обзор
//
// Вся обработка данных (парсинг, facets, кластеризация, хранение) выполняется
// сервером. Пакет только собирает параметры запросов, переводит имена
// snake_case ↔ camelCase и разбирает JSON-ответы в удобные структуры.
//
// # Ключевые компоненты
//
// ## Server
//
// Параметры соединения и сырые запросы к /command/core/<command>.
// Запрос с телом — form-encoded POST с CSRF-токеном, без тела — GET.
//
//	server := refine.NewServer("")             // OPENREFINE_HOST/PORT или 127.0.0.1:3333
//	version, err := server.Version(ctx)
//
// ## Refine
//
// Операции уровня сервера: список проектов, создание проекта из файла.
//
//	r := refine.New(server)
//	projects, err := r.SortedProjects(ctx)
//
// ## Project
//
// Операции над одним проектом: строки, facets, кластеры, экспорт,
// операции над колонками. Project держит Engine (facets) и Sorting,
// которые уходят с каждым запросом.
//
//	p, err := r.OpenProject(ctx, "2281573611164")
//	resp, err := p.ComputeFacets(ctx, facet.NewTextFacet("Party Code"))
//	clusters, err := p.ComputeClusters(ctx, "Column 2", refine.ClusterOptions{})
package refine
