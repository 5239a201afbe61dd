// Package naming переводит имена между snake_case (как их пишет вызывающий
// код и конфигурация) и camelCase (как их ждёт OpenRefine на проводе).
//
//	naming.ToCamel("store_blank_rows")   // "storeBlankRows"
//	naming.FromCamel("blankChoice")      // "blank_choice"
//
// KeysToCamel и KeysFromCamel применяют те же правила к ключам map,
// которые уходят в options/engine JSON или приходят в ответах сервера.
package naming
