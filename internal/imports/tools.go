package imports

import (
	_ "github.com/sammcj/creator-scout/internal/tools/creatorsearch/unified"
	_ "github.com/sammcj/creator-scout/internal/tools/media"
	_ "github.com/sammcj/creator-scout/internal/tools/utilities/toolhelp"
)
