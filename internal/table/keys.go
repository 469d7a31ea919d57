package table

// Keyspace helpers. Layout:
//   tbl/{table}/p/{partitionKey}/r/{rowKey}

var (
	tblPrefix = []byte("tbl/")
	partSeg   = []byte("/p/")
	rowSeg    = []byte("/r/")
)

// keyTablePrefix covers every row of a table.
func keyTablePrefix(table string) []byte {
	k := make([]byte, 0, len(tblPrefix)+len(table)+len(partSeg))
	k = append(k, tblPrefix...)
	k = append(k, table...)
	k = append(k, partSeg...)
	return k
}

// keyPartitionPrefix covers every row of one partition.
func keyPartitionPrefix(table, pk string) []byte {
	k := keyTablePrefix(table)
	k = append(k, pk...)
	k = append(k, rowSeg...)
	return k
}

// keyRow addresses a single row.
func keyRow(table, pk, rk string) []byte {
	k := keyPartitionPrefix(table, pk)
	k = append(k, rk...)
	return k
}
