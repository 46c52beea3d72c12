package catalog

import (
	"monolite/bsonvalue"
	"monolite/page"
)

// encode and decode translate between the in-memory []CollectionMeta
// and the catalog document shape from the data model: {collections:
// [{name, firstPageId, lastPageId, documentCount, indexPageId,
// indexes: [{name, keys, unique, rootPageId}]}, ...]}.

func encode(collections []CollectionMeta) []byte {
	collFields := make([]bsonvalue.Value, len(collections))
	for i, coll := range collections {
		idxFields := make([]bsonvalue.Value, len(coll.Indexes))
		for j, idx := range coll.Indexes {
			keys := make([]bsonvalue.Value, len(idx.Keys))
			for k, key := range idx.Keys {
				keys[k] = bsonvalue.String(key)
			}
			idxFields[j] = bsonvalue.DocumentOf([]bsonvalue.Field{
				{Name: "name", Value: bsonvalue.String(idx.Name)},
				{Name: "keys", Value: bsonvalue.ArrayOf(keys)},
				{Name: "unique", Value: bsonvalue.Bool(idx.Unique)},
				{Name: "rootPageId", Value: bsonvalue.Int64(int64(idx.RootPageID))},
			})
		}

		collFields[i] = bsonvalue.DocumentOf([]bsonvalue.Field{
			{Name: "name", Value: bsonvalue.String(coll.Name)},
			{Name: "firstPageId", Value: bsonvalue.Int64(int64(coll.FirstPageID))},
			{Name: "lastPageId", Value: bsonvalue.Int64(int64(coll.LastPageID))},
			{Name: "documentCount", Value: bsonvalue.Int64(int64(coll.DocumentCount))},
			{Name: "indexPageId", Value: bsonvalue.Int64(int64(coll.IDIndexRootPageID))},
			{Name: "indexes", Value: bsonvalue.ArrayOf(idxFields)},
		})
	}

	doc := bsonvalue.DocumentOf([]bsonvalue.Field{
		{Name: "collections", Value: bsonvalue.ArrayOf(collFields)},
	})
	return bsonvalue.Encode(doc)
}

func decode(payload []byte) ([]CollectionMeta, error) {
	doc, err := bsonvalue.DecodeDocument(payload)
	if err != nil {
		return nil, err
	}

	collectionsVal, ok := doc.Get("collections")
	if !ok {
		return nil, nil
	}

	out := make([]CollectionMeta, len(collectionsVal.Array))
	for i, collVal := range collectionsVal.Array {
		name, _ := collVal.Get("name")
		first, _ := collVal.Get("firstPageId")
		last, _ := collVal.Get("lastPageId")
		count, _ := collVal.Get("documentCount")
		idxPage, _ := collVal.Get("indexPageId")
		indexesVal, _ := collVal.Get("indexes")

		indexes := make([]IndexMeta, len(indexesVal.Array))
		for j, idxVal := range indexesVal.Array {
			idxName, _ := idxVal.Get("name")
			keysVal, _ := idxVal.Get("keys")
			unique, _ := idxVal.Get("unique")
			root, _ := idxVal.Get("rootPageId")

			keys := make([]string, len(keysVal.Array))
			for k, kv := range keysVal.Array {
				keys[k] = kv.Str
			}

			indexes[j] = IndexMeta{
				Name:       idxName.Str,
				Keys:       keys,
				Unique:     unique.Bool,
				RootPageID: pageIDFromInt64(root),
			}
		}

		out[i] = CollectionMeta{
			Name:              name.Str,
			FirstPageID:       pageIDFromInt64(first),
			LastPageID:        pageIDFromInt64(last),
			DocumentCount:     uint64(count.Int64),
			IDIndexRootPageID: pageIDFromInt64(idxPage),
			Indexes:           indexes,
		}
	}
	return out, nil
}

func pageIDFromInt64(v bsonvalue.Value) page.ID {
	return page.ID(v.Int64)
}
