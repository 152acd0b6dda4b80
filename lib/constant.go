package lib

const (
	DEFAULT_BLOCK_SIZE = 64 * 1024 * 1024

	// r-tree cell files
	RTREE_DEGREE         = 25
	RTREE_SIGNATURE      = "SGRTREE1"
	RTREE_SIGNATURE_SIZE = 8
	RTREE_SIZE_FACTOR    = 4
	BUILD_MODE_FAST      = "fast"
	BUILD_MODE_SLOW      = "slow"

	MAX_CONCURRENT_CLOSES       = 4
	RTREE_MAX_CONCURRENT_CLOSES = 1

	// sampling
	SAMPLE_RATIO       = 500
	MAX_LINE_LENGTH    = 200
	MIN_RECORD_LENGTH  = 4
	MAX_SAMPLE_RETRIES = 1000

	REPLICATION_OVERHEAD = 0.002

	NEW_LINE = '\n'

	MASTER_FILE_NAME  = "_master"
	SUCCESS_FILE_NAME = "_SUCCESS"
	CELL_FILE_FORMAT  = "cell_%05d_%04d"
	PART_FILE_FORMAT  = "part-%05d"
	STAGING_PREFIX    = "_staging_"

	SHAPE_POINT = "point"
	SHAPE_RECT  = "rect"
	SHAPE_CELL  = "cell"
)
