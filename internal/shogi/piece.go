package shogi

// Color represents a side: Black (sente, moves first) or White (gote).
type Color uint8

const (
	Black Color = iota
	White
	NoColor Color = 2
)

// Other returns the opposite color.
func (c Color) Other() Color {
	return c ^ 1
}

// String returns the color name.
func (c Color) String() string {
	switch c {
	case Black:
		return "Black"
	case White:
		return "White"
	default:
		return "NoColor"
	}
}

// PieceType represents the kind of a shogi piece, promotions included.
type PieceType uint8

const (
	Pawn PieceType = iota
	Lance
	Knight
	Silver
	Gold
	Bishop
	Rook
	King
	ProPawn
	ProLance
	ProKnight
	ProSilver
	Horse                 // promoted bishop
	Dragon                // promoted rook
	NoPieceType PieceType = 14
)

// pieceTypeNames indexed by PieceType.
var pieceTypeNames = [15]string{
	"Pawn", "Lance", "Knight", "Silver", "Gold", "Bishop", "Rook", "King",
	"ProPawn", "ProLance", "ProKnight", "ProSilver", "Horse", "Dragon", "None",
}

func (pt PieceType) String() string {
	if pt > NoPieceType {
		return "None"
	}
	return pieceTypeNames[pt]
}

// CanPromote reports whether the piece type has a promoted form.
func (pt PieceType) CanPromote() bool {
	switch pt {
	case Pawn, Lance, Knight, Silver, Bishop, Rook:
		return true
	}
	return false
}

// Promote returns the promoted form, or the type itself when it cannot promote.
func (pt PieceType) Promote() PieceType {
	switch pt {
	case Pawn:
		return ProPawn
	case Lance:
		return ProLance
	case Knight:
		return ProKnight
	case Silver:
		return ProSilver
	case Bishop:
		return Horse
	case Rook:
		return Dragon
	}
	return pt
}

// Demote returns the base form a captured piece takes in hand.
func (pt PieceType) Demote() PieceType {
	switch pt {
	case ProPawn:
		return Pawn
	case ProLance:
		return Lance
	case ProKnight:
		return Knight
	case ProSilver:
		return Silver
	case Horse:
		return Bishop
	case Dragon:
		return Rook
	}
	return pt
}

// IsPromoted reports whether the type is a promoted form.
func (pt PieceType) IsPromoted() bool {
	return pt >= ProPawn && pt <= Dragon
}

// HandKind indexes the seven droppable piece kinds in a hand.
type HandKind uint8

const (
	HandPawn HandKind = iota
	HandLance
	HandKnight
	HandSilver
	HandGold
	HandBishop
	HandRook
	NumHandKinds = 7
)

// HandMax is the maximum number of copies of each hand kind one side can hold.
var HandMax = [NumHandKinds]uint8{18, 4, 4, 4, 4, 2, 2}

// HandKindOf converts a (captured and demoted) piece type to its hand slot.
// King has no hand slot; the second return is false for it.
func HandKindOf(pt PieceType) (HandKind, bool) {
	switch pt.Demote() {
	case Pawn:
		return HandPawn, true
	case Lance:
		return HandLance, true
	case Knight:
		return HandKnight, true
	case Silver:
		return HandSilver, true
	case Gold:
		return HandGold, true
	case Bishop:
		return HandBishop, true
	case Rook:
		return HandRook, true
	}
	return 0, false
}

// PieceTypeOf converts a hand slot back to the dropped piece type.
func (hk HandKind) PieceTypeOf() PieceType {
	return [NumHandKinds]PieceType{Pawn, Lance, Knight, Silver, Gold, Bishop, Rook}[hk]
}

// Piece combines PieceType and Color.
// Encoded as pieceType + color*14; NoPiece (blank square) is 28.
type Piece uint8

const NoPiece Piece = 28

// NewPiece creates a Piece from type and color.
func NewPiece(pt PieceType, c Color) Piece {
	if pt >= NoPieceType || c >= NoColor {
		return NoPiece
	}
	return Piece(pt) + Piece(c)*14
}

// Type returns the PieceType of the piece.
func (p Piece) Type() PieceType {
	if p >= NoPiece {
		return NoPieceType
	}
	return PieceType(p % 14)
}

// Color returns the owning side of the piece.
func (p Piece) Color() Color {
	if p >= NoPiece {
		return NoColor
	}
	return Color(p / 14)
}

// Promote returns the promoted form of the piece.
func (p Piece) Promote() Piece {
	if p >= NoPiece {
		return p
	}
	return NewPiece(p.Type().Promote(), p.Color())
}

// sfenChars maps base piece types to their SFEN letters (black case).
var sfenChars = [8]byte{'P', 'L', 'N', 'S', 'G', 'B', 'R', 'K'}

// String returns the SFEN token for the piece, with "+" for promoted forms
// and lowercase for white.
func (p Piece) String() string {
	if p >= NoPiece {
		return " "
	}
	pt := p.Type()
	prefix := ""
	if pt.IsPromoted() {
		prefix = "+"
	}
	c := sfenChars[pt.Demote()]
	if p.Color() == White {
		c += 'a' - 'A'
	}
	return prefix + string(c)
}

// PieceFromSFEN converts an SFEN letter (optionally promoted) to a Piece.
func PieceFromSFEN(c byte, promoted bool) Piece {
	color := Black
	if c >= 'a' && c <= 'z' {
		color = White
		c -= 'a' - 'A'
	}
	var pt PieceType
	switch c {
	case 'P':
		pt = Pawn
	case 'L':
		pt = Lance
	case 'N':
		pt = Knight
	case 'S':
		pt = Silver
	case 'G':
		pt = Gold
	case 'B':
		pt = Bishop
	case 'R':
		pt = Rook
	case 'K':
		pt = King
	default:
		return NoPiece
	}
	if promoted {
		pt = pt.Promote()
	}
	return NewPiece(pt, color)
}
