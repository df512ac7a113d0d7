package pgs

import (
	"errors"
	"fmt"
)

// decodeRLE expands object data into palette indices, one byte per pixel.
//
// A non-zero byte is a single pixel. After a zero byte, a flag byte
// selects: 0 end of line, 00LLLLLL short run of color 0, 01LLLLLL LLLLLLLL
// long run of color 0, 10LLLLLL CC short run of color C, 11LLLLLL LLLLLLLL
// CC long run of color C.
func decodeRLE(data []byte, width, height int) ([]uint8, error) {
	pixels := make([]uint8, width*height)
	x, y, i := 0, 0, 0

	put := func(c uint8, n int) error {
		if y >= height {
			return errors.New("pixels past the last line")
		}
		if x+n > width {
			return fmt.Errorf("line %d overflows width %d", y, width)
		}
		row := pixels[y*width:]
		for k := 0; k < n; k++ {
			row[x+k] = c
		}
		x += n
		return nil
	}
	next := func() (byte, error) {
		if i >= len(data) {
			return 0, errors.New("truncated run")
		}
		b := data[i]
		i++
		return b, nil
	}

	for i < len(data) {
		b, _ := next()
		if b != 0 {
			if err := put(b, 1); err != nil {
				return nil, err
			}
			continue
		}
		flag, err := next()
		if err != nil {
			return nil, err
		}
		if flag == 0 {
			x = 0
			y++
			continue
		}
		run := int(flag & 0x3f)
		if flag&0x40 != 0 {
			low, err := next()
			if err != nil {
				return nil, err
			}
			run = run<<8 | int(low)
		}
		var c uint8
		if flag&0x80 != 0 {
			if c, err = next(); err != nil {
				return nil, err
			}
		}
		if err := put(c, run); err != nil {
			return nil, err
		}
	}
	return pixels, nil
}
